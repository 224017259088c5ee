// Package agent exposes a capture backend over HTTP and provides the matching
// client, so sessions can drive a correlator on another host.
package agent

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/radioscope/capsession/internal/devices"
	"github.com/radioscope/capsession/internal/telemetry"
)

// TokenEnv names the environment variable holding the shared agent token.
const TokenEnv = "CAPSESSION_AGENT_TOKEN"

// RequestIDHeader carries the per-request ID echoed back by the agent.
const RequestIDHeader = "X-Request-ID"

type Server struct {
	Version string
	Backend devices.Backend
	// Token, when set, is required on every backend route. It defaults to
	// $CAPSESSION_AGENT_TOKEN.
	Token string

	srv *http.Server
}

func (s *Server) token() string {
	if s.Token != "" {
		return s.Token
	}
	return os.Getenv(TokenEnv)
}

// Routes for the server
func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v0/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		_ = r.Body.Close()
		telemetry.CounterGlobal("capsession_agent_heartbeats", 1, map[string]string{"endpoint": "heartbeat"})
		writeJSON(w, http.StatusOK, HeartbeatResponse{Time: time.Now(), Host: r.Host, Version: s.Version})
	})

	s.handle(mux, "GET", "status", func(r *http.Request) (any, error) {
		capturing, err := s.Backend.Capturing(r.Context())
		return StatusResponse{Capturing: capturing}, err
	})
	s.handle(mux, "GET", "files", func(r *http.Request) (any, error) {
		files, err := s.Backend.CurrentFiles(r.Context())
		return FilesResponse{Files: files}, err
	})
	s.handle(mux, "POST", "capture-start", func(r *http.Request) (any, error) {
		return nil, s.Backend.CaptureStart(r.Context())
	})
	s.handle(mux, "POST", "capture-stop", func(r *http.Request) (any, error) {
		return nil, s.Backend.CaptureStop(r.Context())
	})
	s.handle(mux, "POST", "write-output", func(r *http.Request) (any, error) {
		var req WriteOutputRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.Backend.WriteOutput(r.Context(), req.Enabled)
	})
	s.handle(mux, "POST", "compound-scan", func(r *http.Request) (any, error) {
		var req CompoundScanRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.Backend.NewCompoundScan(r.Context(), req.Target, req.Label, req.FirstScanLabel)
	})
	s.handle(mux, "POST", "scan", func(r *http.Request) (any, error) {
		var req ScanRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.Backend.NewScan(r.Context(), req.Label)
	})
	s.handle(mux, "POST", "target", func(r *http.Request) (any, error) {
		var req TargetRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.Backend.SetTarget(r.Context(), req.Description)
	})
	s.handle(mux, "POST", "setup", func(r *http.Request) (any, error) {
		var req SetupRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return nil, s.Backend.Setup(r.Context(), devices.SetupParams{
			OutputDir:     req.OutputDir,
			ExperimentID:  req.ExperimentID,
			Observer:      req.Observer,
			Description:   req.Description,
			DumpPeriod:    time.Duration(req.DumpPeriodS * float64(time.Second)),
			EffectiveLOHz: req.EffectiveLOHz,
		})
	})
}

// badRequest marks errors caused by the request rather than the backend.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest{err}
	}
	return nil
}

func (s *Server) handle(mux *http.ServeMux, method, name string, fn func(r *http.Request) (any, error)) {
	mux.HandleFunc(method+" /v0/backend/"+name, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		if tok := s.token(); tok != "" && !authorized(r, tok) {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		out, err := fn(r)
		code := http.StatusOK
		switch err.(type) {
		case nil:
		case badRequest:
			code = http.StatusBadRequest
		default:
			code = http.StatusBadGateway
		}
		labels := map[string]string{"endpoint": name, "status": strconv.Itoa(code)}
		telemetry.CounterGlobal("capsession_agent_requests", 1, labels)
		telemetry.TimerGlobal("capsession_agent_request_duration", time.Since(start), labels)

		if err != nil {
			log.Warn().Err(err).Str("endpoint", name).Str("request_id", id).Int("status", code).Msg("Backend request failed")
			writeJSON(w, code, ErrorResponse{Error: err.Error()})
			return
		}
		if out == nil {
			out = struct{}{}
		}
		writeJSON(w, code, out)
	})
}

// authorized accepts the token as a bearer token or in X-Auth-Token.
func authorized(r *http.Request, tok string) bool {
	bearer := subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte("Bearer "+tok)) == 1
	header := subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Auth-Token")), []byte(tok)) == 1
	return bearer || header
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler returns the agent's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return mux
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	log.Info().Str("addr", addr).Msg("Starting capture agent")
	return s.srv.ListenAndServe()
}

// Shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return fmt.Errorf("server not running")
	}
	return s.srv.Shutdown(ctx)
}

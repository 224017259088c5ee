package agent

import "time"

// HeartbeatRequest is empty; the agent reports itself.
type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	Time    time.Time `json:"time"`
	Host    string    `json:"host"`
	Version string    `json:"version"`
}

type StatusResponse struct {
	Capturing bool `json:"capturing"`
}

type FilesResponse struct {
	Files []string `json:"files"`
}

type WriteOutputRequest struct {
	Enabled bool `json:"enabled"`
}

type CompoundScanRequest struct {
	Target         string `json:"target"`
	Label          string `json:"label"`
	FirstScanLabel string `json:"first_scan_label"`
}

type ScanRequest struct {
	Label string `json:"label"`
}

type TargetRequest struct {
	Description string `json:"description"`
}

type SetupRequest struct {
	OutputDir     string  `json:"output_dir"`
	ExperimentID  string  `json:"experiment_id"`
	Observer      string  `json:"observer"`
	Description   string  `json:"description"`
	DumpPeriodS   float64 `json:"dump_period_s"`
	EffectiveLOHz float64 `json:"effective_lo_hz"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

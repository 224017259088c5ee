package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownAntenna     = errors.New("unknown antenna")
	ErrInvalidSubset      = errors.New("invalid antenna subset")
	ErrTimeout            = errors.New("wait timed out")
	ErrLockTimeout        = errors.New("pointing lock timed out")
	ErrScanTimeout        = errors.New("scan completion timed out")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrSessionClosed      = errors.New("session already shut down")
	ErrInvalidPlan        = errors.New("invalid scan plan")
	ErrEmptyGroup         = errors.New("antenna group is empty")
)

// UnknownAntennaError reports an antenna name missing from the device registry.
type UnknownAntennaError struct {
	Name string
}

func (e *UnknownAntennaError) Error() string {
	return fmt.Sprintf("antenna %q not found in device registry", e.Name)
}

func (e *UnknownAntennaError) Is(target error) bool { return target == ErrUnknownAntenna }

// InvalidSubsetError reports a holography scan subset that is empty, not
// contained in the session group, or equal to it.
type InvalidSubsetError struct {
	Reason string
}

func (e *InvalidSubsetError) Error() string {
	return "invalid scanning subset: " + e.Reason
}

func (e *InvalidSubsetError) Is(target error) bool { return target == ErrInvalidSubset }

// LockTimeoutError reports antennas that did not reach pointing lock in time.
// Their position is indeterminate.
type LockTimeoutError struct {
	Antennas []string
	Timeout  time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("antennas %s did not lock on target within %s", strings.Join(e.Antennas, ","), e.Timeout)
}

func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout || target == ErrTimeout
}

// ScanTimeoutError reports antennas that did not finish their scan in time.
type ScanTimeoutError struct {
	Antennas []string
	Timeout  time.Duration
}

func (e *ScanTimeoutError) Error() string {
	return fmt.Sprintf("antennas %s did not complete scan within %s", strings.Join(e.Antennas, ","), e.Timeout)
}

func (e *ScanTimeoutError) Is(target error) bool {
	return target == ErrScanTimeout || target == ErrTimeout
}

// BackendUnavailableError wraps a failed backend control call.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

package encoder

import (
	"errors"
	"fmt"

	"go2tv.app/screenrec/internal/supervisor"
)

var (
	ErrEncoderNotFound = supervisor.ErrEncoderNotFound
	ErrProcessSpawn    = supervisor.ErrProcessSpawn

	ErrPipeConnectTimeout = errors.New("encoder did not connect to its input in time")
	ErrEncoderTerminated  = errors.New("encoder terminated")
	ErrFrameSize          = errors.New("frame does not match the configured video size")
	ErrWriteTimeout       = errors.New("previous write still pending")
	ErrClosed             = errors.New("writer closed")
)

// TerminatedError reports that the encoder process is gone (or its input
// failed) and no further data can be delivered. ExitCode is -1 when the
// process is still running or was killed by a signal.
type TerminatedError struct {
	ExitCode int
	Err      error
}

func (e *TerminatedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("encoder terminated with exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("encoder terminated with exit code %d: %v", e.ExitCode, e.Err)
}

func (e *TerminatedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrEncoderTerminated}
	}
	return []error{ErrEncoderTerminated, e.Err}
}

package supervisor

import "errors"

var (
	// ErrEncoderNotFound means no encoder executable could be located.
	ErrEncoderNotFound = errors.New("encoder executable not found")
	// ErrProcessSpawn wraps the OS error of a failed process start.
	ErrProcessSpawn = errors.New("encoder process failed to start")
)

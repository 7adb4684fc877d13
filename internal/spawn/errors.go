package spawn

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest     = errors.New("invalid spawn request")
	ErrPipeCreationFailed = errors.New("pipe creation failed")
	ErrForkFailed         = errors.New("fork failed")
	ErrUnsupported        = errors.New("spawn is not supported on this platform")

	ErrBadDescriptor = errors.New("bad file descriptor")
	ErrInvalidRange  = errors.New("offset and length out of buffer range")
	ErrInvalidPID    = errors.New("invalid pid")
	ErrClosed        = errors.New("descriptor already closed")
	ErrProcessDone   = errors.New("process already waited on")
)

// Op names the launch step that failed.
type Op string

const (
	OpValidate Op = "validate"
	OpPipe     Op = "pipe"
	OpFork     Op = "fork"
)

// Error is returned by Launch for every failure the caller can observe
// synchronously. errors.Is matches both the step sentinel (ErrForkFailed and
// friends) and the underlying cause.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.kind(), e.Err}
}

func (e *Error) kind() error {
	switch e.Op {
	case OpPipe:
		return ErrPipeCreationFailed
	case OpFork:
		return ErrForkFailed
	default:
		return ErrInvalidRequest
	}
}

//go:build !linux

package spawn

import "syscall"

type Child struct {
	PID    int
	Stdin  int
	Stdout int
}

func Launch(req Request) (Child, error) {
	if err := req.Validate(); err != nil {
		return Child{}, &Error{Op: OpValidate, Err: err}
	}
	return Child{}, &Error{Op: OpFork, Err: ErrUnsupported}
}

func Write(fd int, p []byte, offset, length int) (int, error) {
	return -1, ErrUnsupported
}

func Read(fd int, p []byte, offset, length int) (int, error) {
	return -1, ErrUnsupported
}

func Close(fd int) error {
	return nil
}

func Signal(pid int, sig syscall.Signal) error {
	return nil
}

func Probe(pid int) Liveness {
	return NotFound
}

func WaitForExit(pid int) (ExitStatus, error) {
	if pid <= 0 {
		return ExitStatus{}, ErrInvalidPID
	}
	return ExitStatus{}, ErrUnsupported
}

func waitExited(pid int) error {
	return ErrUnsupported
}

package spawn

import (
	"fmt"
	"syscall"
)

// ExitKind tells how a child left.
type ExitKind int

const (
	KindUnknown ExitKind = iota
	KindExited
	KindSignaled
)

// ExitStatus is the terminal state of a reaped child.
type ExitStatus struct {
	Kind   ExitKind
	Status int            // exit status when Kind == KindExited
	Signal syscall.Signal // terminating signal when Kind == KindSignaled
}

func Exited(code int) ExitStatus {
	return ExitStatus{Kind: KindExited, Status: code}
}

func Signaled(sig syscall.Signal) ExitStatus {
	return ExitStatus{Kind: KindSignaled, Signal: sig}
}

// Code folds the status into one integer: the exit status (0-255) for a
// normal exit, the negated signal number for a signal, 0 otherwise.
func (s ExitStatus) Code() int {
	switch s.Kind {
	case KindExited:
		return s.Status
	case KindSignaled:
		return -int(s.Signal)
	default:
		return 0
	}
}

// ShellCode is the code a shell would report: 128+N for signal N.
func (s ExitStatus) ShellCode() int {
	if s.Kind == KindSignaled {
		return 128 + int(s.Signal)
	}
	return s.Code()
}

func (s ExitStatus) Success() bool {
	return s.Kind == KindExited && s.Status == 0
}

func (s ExitStatus) String() string {
	switch s.Kind {
	case KindExited:
		return fmt.Sprintf("exit status %d", s.Status)
	case KindSignaled:
		return "signal: " + s.Signal.String()
	default:
		return "unknown"
	}
}

// Liveness is the result of a signal-0 probe.
type Liveness int

const (
	NotFound Liveness = iota
	Alive
	NoPermission
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case NoPermission:
		return "no-permission"
	default:
		return "not-found"
	}
}

// IsAlive reports whether pid names a process the caller may signal. A
// missing process and one owned by someone else both read as false; use
// Probe to tell them apart.
func IsAlive(pid int) bool {
	return Probe(pid) == Alive
}

//go:build linux

package spawn

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Write issues one write(2) of p[offset:offset+length] to fd. Short writes
// are normal; callers loop. It returns -1 with a non-nil error on failure.
func Write(fd int, p []byte, offset, length int) (int, error) {
	if fd < 0 {
		return -1, ErrBadDescriptor
	}
	b, err := window(p, offset, length)
	if err != nil {
		return -1, err
	}
	for {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		return n, nil
	}
}

// Read issues one read(2) into p[offset:offset+length]. A return of 0 with a
// nil error is end of stream.
func Read(fd int, p []byte, offset, length int) (int, error) {
	if fd < 0 {
		return -1, ErrBadDescriptor
	}
	b, err := window(p, offset, length)
	if err != nil {
		return -1, err
	}
	for {
		n, err := unix.Read(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		return n, nil
	}
}

// Close closes fd. Negative descriptors are ignored. Closing a descriptor
// twice is the caller's bug; Process guards against it.
func Close(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// Signal sends sig to pid without waiting for it to be handled. Non-positive
// pids are ignored so a stray 0 or -1 can never reach a process group.
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	return unix.Kill(pid, sig)
}

// Probe checks pid with signal 0.
func Probe(pid int) Liveness {
	if pid <= 0 {
		return NotFound
	}
	switch err := unix.Kill(pid, 0); err {
	case nil:
		return Alive
	case unix.EPERM:
		return NoPermission
	default:
		return NotFound
	}
}

// WaitForExit blocks until pid exits or is killed by a signal and reaps it.
// After it returns the pid may be reused by the system.
func WaitForExit(pid int) (ExitStatus, error) {
	if pid <= 0 {
		return ExitStatus{}, ErrInvalidPID
	}
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitStatus{}, fmt.Errorf("wait4 %d: %w", pid, err)
		}
		return statusFromWait(ws), nil
	}
}

func statusFromWait(ws unix.WaitStatus) ExitStatus {
	switch {
	case ws.Exited():
		return Exited(ws.ExitStatus())
	case ws.Signaled():
		return Signaled(ws.Signal())
	default:
		return ExitStatus{}
	}
}

// waitExited blocks until pid has exited without reaping it.
func waitExited(pid int) error {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			return err
		}
	}
}

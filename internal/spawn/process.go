package spawn

import (
	"fmt"
	"io"
	"sync"
	"syscall"

	"go.uber.org/atomic"
)

// Process is a launched child together with the parent ends of its pipes.
// One goroutine may write, one may read and one may wait at the same time;
// each descriptor must only be closed by the goroutine that uses it.
type Process struct {
	pid    int
	stdin  *atomic.Int32
	stdout *atomic.Int32

	mu     sync.RWMutex
	done   bool
	status ExitStatus
}

var (
	_ io.Writer = (*Process)(nil)
	_ io.Reader = (*Process)(nil)
)

// Start launches req and wraps the result.
func Start(req Request) (*Process, error) {
	child, err := Launch(req)
	if err != nil {
		return nil, err
	}
	return newProcess(child), nil
}

func newProcess(c Child) *Process {
	return &Process{
		pid:    c.PID,
		stdin:  atomic.NewInt32(int32(c.Stdin)),
		stdout: atomic.NewInt32(int32(c.Stdout)),
	}
}

func (p *Process) PID() int {
	return p.pid
}

// Write writes all of b to the child's stdin, looping over short writes.
func (p *Process) Write(b []byte) (int, error) {
	fd := int(p.stdin.Load())
	if fd < 0 {
		return 0, ErrClosed
	}
	written := 0
	for written < len(b) {
		n, err := Write(fd, b, written, len(b)-written)
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

// Read reads the child's merged stdout and stderr. It returns io.EOF once
// every writer of the pipe, normally the child, has gone.
func (p *Process) Read(b []byte) (int, error) {
	fd := int(p.stdout.Load())
	if fd < 0 {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := Read(fd, b, 0, len(b))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// CloseStdin closes the child's stdin, which the child sees as end of input.
// Closing twice is a no-op.
func (p *Process) CloseStdin() error {
	return Close(int(p.stdin.Swap(-1)))
}

func (p *Process) CloseStdout() error {
	return Close(int(p.stdout.Swap(-1)))
}

// Close releases both descriptors. It does not stop or reap the child.
func (p *Process) Close() error {
	errIn := p.CloseStdin()
	errOut := p.CloseStdout()
	if errIn != nil {
		return errIn
	}
	return errOut
}

// Signal delivers sig unless the child has already been reaped, in which
// case the pid may belong to someone else and ErrProcessDone is returned.
func (p *Process) Signal(sig syscall.Signal) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrProcessDone
	}
	return Signal(p.pid, sig)
}

func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Alive reports whether the child still exists. A reaped child is never
// alive. An exited but unreaped child still is.
func (p *Process) Alive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return false
	}
	return IsAlive(p.pid)
}

// Wait blocks until the child exits, reaps it and returns its status. Later
// calls return the same status.
func (p *Process) Wait() (ExitStatus, error) {
	p.mu.RLock()
	if p.done {
		defer p.mu.RUnlock()
		return p.status, nil
	}
	p.mu.RUnlock()

	// Block without reaping, so Signal never races a recycled pid.
	err := waitExited(p.pid)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return p.status, nil
	}
	if err != nil {
		return ExitStatus{}, fmt.Errorf("waiting for pid %d: %w", p.pid, err)
	}
	status, err := WaitForExit(p.pid)
	if err != nil {
		return ExitStatus{}, err
	}
	p.done = true
	p.status = status
	return status, nil
}

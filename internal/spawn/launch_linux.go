//go:build linux

package spawn

import (
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// selfExe stays valid even if the binary was replaced on disk.
const selfExe = "/proc/self/exe"

var (
	// launchMu keeps launches from overlapping; the child-side descriptor
	// sweep assumes no other launch is mid-flight in this process.
	launchMu sync.Mutex

	// Swapped in tests to inject setup failures.
	pipe2    = unix.Pipe2
	forkExec = syscall.ForkExec
)

// Child is the raw result of a launch. The caller owns both descriptors.
type Child struct {
	PID    int
	Stdin  int // write end of the child's stdin
	Stdout int // read end of the child's merged stdout and stderr
}

type pipeEnds struct {
	r, w int
}

func newPipe() (pipeEnds, error) {
	var p [2]int
	if err := pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return pipeEnds{r: -1, w: -1}, err
	}
	return pipeEnds{r: p[0], w: p[1]}, nil
}

func (p pipeEnds) close() {
	_ = Close(p.r)
	_ = Close(p.w)
}

// Launch starts req and returns its pid with the parent ends of its pipes.
// Either all three are valid or an *Error is returned and nothing was left
// open. Failures inside the child after fork are not reported here; they show
// up as the exit status from WaitForExit.
func Launch(req Request) (Child, error) {
	if err := req.Validate(); err != nil {
		return Child{}, &Error{Op: OpValidate, Err: err}
	}

	launchMu.Lock()
	defer launchMu.Unlock()

	stdin, err := newPipe()
	if err != nil {
		return Child{}, &Error{Op: OpPipe, Err: err}
	}
	output, err := newPipe()
	if err != nil {
		stdin.close()
		return Child{}, &Error{Op: OpPipe, Err: err}
	}
	// The request travels over its own pipe; argv is world-readable.
	request, err := newPipe()
	if err != nil {
		stdin.close()
		output.close()
		return Child{}, &Error{Op: OpPipe, Err: err}
	}

	pid, err := forkExec(selfExe, []string{childArg0}, &syscall.ProcAttr{
		Env:   []string{},
		Files: []uintptr{uintptr(stdin.r), uintptr(output.w), uintptr(output.w), uintptr(request.r)},
	})
	if err != nil {
		stdin.close()
		output.close()
		request.close()
		return Child{}, &Error{Op: OpFork, Err: err}
	}

	_ = Close(stdin.r)
	_ = Close(output.w)
	_ = Close(request.r)

	// A short write leaves the child with a request it cannot decode; it
	// reports that itself and exits, like any other child-side failure.
	_ = writeAll(request.w, req.encode())
	_ = Close(request.w)

	return Child{PID: pid, Stdin: stdin.w, Stdout: output.r}, nil
}

func writeAll(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := Write(fd, p, 0, len(p))
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

//go:build linux

package spawn

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"golang.org/x/sys/unix"
)

func init() {
	if len(os.Args) > 0 && os.Args[0] == childArg0 {
		os.Exit(runChild())
	}
}

// runChild finishes the child side of a launch and execs the target. It only
// returns when the target could not be started.
func runChild() int {
	// The signal mask survives exec per thread, so pin the thread first.
	runtime.LockOSThread()
	var none unix.Sigset_t
	_ = unix.PthreadSigmask(unix.SIG_SETMASK, &none, nil)

	data, err := readRequest()
	_ = unix.Close(requestFD)
	if err != nil {
		diagnose("spawn: reading request", err)
		return ExitCannotExecute
	}
	req, err := decodeRequest(data)
	if err != nil {
		diagnose("spawn", err)
		return ExitCannotExecute
	}

	sealInherited()
	environ := buildEnviron(req.Env)

	if req.Dir != "" {
		if err := unix.Chdir(req.Dir); err != nil {
			diagnose(fmt.Sprintf("chdir(%q)", req.Dir), err)
		}
	}

	pathVar, ok := lookupEnv(environ, "PATH")
	if !ok {
		pathVar = defaultPath
	}
	path, err := lookPath(os.Stat, pathVar, req.Command)
	if err != nil {
		diagnose(fmt.Sprintf("exec(%q)", req.Command), err)
		if errors.Is(err, exec.ErrNotFound) {
			return ExitNotFound
		}
		return ExitCannotExecute
	}

	err = unix.Exec(path, req.argv(), environ)
	diagnose(fmt.Sprintf("exec(%q)", req.Command), err)
	if errors.Is(err, unix.ENOENT) {
		return ExitNotFound
	}
	return ExitCannotExecute
}

// readRequest reads the encoded request from requestFD until the parent
// closes its end.
func readRequest() ([]byte, error) {
	var data []byte
	buf := make([]byte, 4096)
	for {
		n, err := Read(requestFD, buf, 0, len(buf))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return data, nil
		}
		data = append(data, buf[:n]...)
	}
}

// sealInherited marks every descriptor above stderr close-on-exec, so the
// target starts with exactly 0, 1 and 2. Marking instead of closing keeps the
// runtime's own descriptors usable until exec.
func sealInherited() {
	fds, err := openDescriptors()
	if err != nil {
		_ = unix.CloseRange(3, math.MaxUint32, unix.CLOSE_RANGE_CLOEXEC)
		return
	}
	for _, fd := range fds {
		if fd > 2 {
			_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
		}
	}
}

// openDescriptors lists the open descriptors of this process from
// /proc/self/fd, leaving out the descriptor used for the listing.
func openDescriptors() ([]int, error) {
	dirfd, err := unix.Open("/proc/self/fd", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(dirfd)

	buf := make([]byte, 4096)
	var names []string
	for {
		n, err := unix.ReadDirent(dirfd, buf)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			break
		}
		_, _, names = unix.ParseDirent(buf[:n], -1, names)
	}

	fds := make([]int, 0, len(names))
	for _, name := range names {
		fd, err := strconv.Atoi(name)
		if err != nil || fd == dirfd {
			continue
		}
		fds = append(fds, fd)
	}
	return fds, nil
}

func diagnose(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
}

package spawn

import (
	"fmt"
	"strings"
)

// Request describes one child process.
type Request struct {
	// Command is the program to run. A name without a slash is searched for
	// in the PATH of Env, not of the caller.
	Command string

	// Dir is the working directory of the child. Empty keeps the caller's.
	Dir string

	// Argv is the full argument vector including argv[0]. Empty means
	// []string{Command}.
	Argv []string

	// Env is the complete child environment as KEY=VALUE pairs. It replaces
	// the caller's environment; nil means an empty environment.
	Env []string
}

// Validate reports whether the request can be marshalled for exec.
func (r Request) Validate() error {
	if r.Command == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidRequest)
	}
	if hasNUL(r.Command) {
		return fmt.Errorf("%w: command contains a NUL byte", ErrInvalidRequest)
	}
	if hasNUL(r.Dir) {
		return fmt.Errorf("%w: working directory contains a NUL byte", ErrInvalidRequest)
	}
	for i, arg := range r.Argv {
		if hasNUL(arg) {
			return fmt.Errorf("%w: argv[%d] contains a NUL byte", ErrInvalidRequest, i)
		}
	}
	for i, kv := range r.Env {
		if hasNUL(kv) {
			return fmt.Errorf("%w: env[%d] contains a NUL byte", ErrInvalidRequest, i)
		}
	}
	return nil
}

func (r Request) argv() []string {
	if len(r.Argv) == 0 {
		return []string{r.Command}
	}
	return r.Argv
}

func hasNUL(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}

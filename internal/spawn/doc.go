// Package spawn launches a child process with its standard streams wired to
// the caller through pipes and exposes byte-level control over the result.
//
// A launch creates two pipes, forks, and hands the child one end of each:
// the read end of the stdin pipe as fd 0 and the write end of the output pipe
// as both fd 1 and fd 2, so stdout and stderr are always merged. The child
// environment is exactly the requested KEY=VALUE list, every descriptor above
// 2 is closed across exec, and the argument vector is passed to exec
// verbatim without a shell.
//
// Go cannot run arbitrary code between fork and exec, so the child side runs
// as a short-lived trampoline: the launch re-executes the current binary with
// a reserved argv[0] as its only argument, and the package init hook in that
// process performs the descriptor sweep, environment replacement and
// directory change before exec'ing the target in place. The request itself,
// environment values included, is written to a pipe the trampoline reads as
// fd 3, so it never appears in /proc/<pid>/cmdline. The pid returned to the
// caller is therefore the pid of the target program.
//
// The hook runs during package initialization, so the init functions of every
// package initialized before this one run in the trampoline too, once per
// launch. They add to launch latency, and anything they write to stdout or
// stderr lands in the child's merged output. Binaries that embed this package
// should keep such init functions silent.
//
// Failures before fork are returned as *Error values and leave nothing
// behind. Failures after fork (bad working directory, missing command) are
// reported by the child on its stderr and surface as its exit status.
package spawn

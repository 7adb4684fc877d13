package spawn

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// childArg0 marks a process started by Launch that still has to perform the
// child-side setup before exec'ing the requested program. It is the only
// argument the trampoline gets, so nothing from the request shows up in
// /proc/<pid>/cmdline before the target runs.
const childArg0 = "spawnguard:exec-child"

// requestFD is where the trampoline finds the encoded request.
const requestFD = 3

// Exit codes used by the child when it cannot replace itself with the
// requested program. They follow the shell convention.
const (
	ExitCannotExecute = 126
	ExitNotFound      = 127
)

// encode serializes the request for the trampoline as NUL-terminated fields:
// dir, command, len(argv), argv..., env... Validate guarantees no field
// contains a NUL.
func (r Request) encode() []byte {
	argv := r.argv()
	var buf bytes.Buffer
	field := func(s string) {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	field(r.Dir)
	field(r.Command)
	field(strconv.Itoa(len(argv)))
	for _, arg := range argv {
		field(arg)
	}
	for _, kv := range r.Env {
		field(kv)
	}
	return buf.Bytes()
}

// decodeRequest is the inverse of encode.
func decodeRequest(data []byte) (Request, error) {
	if len(data) == 0 || data[len(data)-1] != 0 {
		return Request{}, fmt.Errorf("malformed child request: %d bytes, unterminated", len(data))
	}
	fields := strings.Split(string(data[:len(data)-1]), "\x00")
	if len(fields) < 3 {
		return Request{}, fmt.Errorf("malformed child request: %d fields", len(fields))
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n < 0 || 3+n > len(fields) {
		return Request{}, fmt.Errorf("malformed child argv count %q", fields[2])
	}
	return Request{
		Dir:     fields[0],
		Command: fields[1],
		Argv:    fields[3 : 3+n],
		Env:     fields[3+n:],
	}, nil
}

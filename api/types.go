package api

import "time"

// Verdict represents the outcome of a policy evaluation.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
	VerdictLog   Verdict = "log"
)

// Permits reports whether a launch with this verdict may go ahead.
func (v Verdict) Permits() bool {
	return v == VerdictAllow || v == VerdictLog
}

// Event is the kind of an audit record.
type Event string

const (
	EventLaunch Event = "launch" // child started
	EventDeny   Event = "deny"   // launch refused before fork
	EventExit   Event = "exit"   // child reaped
	EventError  Event = "error"  // launch failed after the gate allowed it
)

// AuditRecord represents a single audited action.
type AuditRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Event     Event         `json:"event"`
	Command   string        `json:"command"`
	Args      []string      `json:"args,omitempty"`
	Dir       string        `json:"dir,omitempty"`
	EnvKeys   []string      `json:"env_keys,omitempty"`
	PID       int           `json:"pid,omitempty"`
	Verdict   Verdict       `json:"verdict,omitempty"`
	Rule      string        `json:"rule,omitempty"`
	Message   string        `json:"message,omitempty"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Signal    string        `json:"signal,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// CheckRequest is used by the CLI `check` command.
type CheckRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Dir     string   `json:"dir,omitempty"`
	EnvKeys []string `json:"env_keys,omitempty"`
}

// CheckResponse is the result of a policy check.
type CheckResponse struct {
	Verdict Verdict `json:"verdict"`
	Rule    string  `json:"rule,omitempty"`
	Message string  `json:"message,omitempty"`
}

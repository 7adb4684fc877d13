package api

import "time"

// QueryFilter defines criteria for querying audit records.
type QueryFilter struct {
	Since   time.Time `json:"since,omitempty"`
	Until   time.Time `json:"until,omitempty"`
	Event   Event     `json:"event,omitempty"`
	Command string    `json:"command,omitempty"`
	Verdict Verdict   `json:"verdict,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// AuditStats summarizes the audit trail.
type AuditStats struct {
	TotalRecords int            `json:"total_records"`
	Launches     int            `json:"launches"`
	Denials      int            `json:"denials"`
	Exits        int            `json:"exits"`
	Errors       int            `json:"errors"`
	NonZeroExits int            `json:"non_zero_exits"`
	ByCommand    map[string]int `json:"by_command"`
	ByRule       map[string]int `json:"by_rule"`
}

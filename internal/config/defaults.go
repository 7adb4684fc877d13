package config

import "time"

const (
	DefaultKillGrace  = 5 * time.Second
	DefaultReadBuffer = 8192
)

// DefaultInherit lists the caller variables passed to children when the
// policy does not say otherwise.
var DefaultInherit = []string{"PATH", "HOME", "LANG", "TERM"}

// DefaultLogDir returns the default log directory path.
func DefaultLogDir() string {
	return "~/.spawnguard/logs"
}

package spawn

import "strings"

// defaultPath is searched when the child environment has no PATH, matching
// the libc execvp fallback.
const defaultPath = "/bin:/usr/bin"

// buildEnviron applies env, in order, to an empty environment. A repeated key
// keeps its first position and takes the last value; an entry without '='
// unsets the key; entries with an empty key are dropped.
func buildEnviron(env []string) []string {
	type entry struct {
		kv  string
		set bool
	}
	index := make(map[string]int, len(env))
	entries := make([]entry, 0, len(env))
	for _, kv := range env {
		key, _, hasValue := strings.Cut(kv, "=")
		if key == "" {
			continue
		}
		i, seen := index[key]
		switch {
		case !hasValue:
			if seen {
				entries[i].set = false
				delete(index, key)
			}
		case seen:
			entries[i].kv = kv
		default:
			index[key] = len(entries)
			entries = append(entries, entry{kv: kv, set: true})
		}
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.set {
			out = append(out, e.kv)
		}
	}
	return out
}

// lookupEnv returns the value of key in a KEY=VALUE list.
func lookupEnv(environ []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(environ) - 1; i >= 0; i-- {
		if strings.HasPrefix(environ[i], prefix) {
			return environ[i][len(prefix):], true
		}
	}
	return "", false
}

// EnvKeys returns the names of the variables a child launched with env
// would see, in order.
func EnvKeys(env []string) []string {
	environ := buildEnviron(env)
	keys := make([]string, len(environ))
	for i, kv := range environ {
		keys[i], _, _ = strings.Cut(kv, "=")
	}
	return keys
}

package config

import "strings"

// ParseDotEnv folds a raw KEY=VALUE block into env. Blank lines and
// lines starting with # are skipped, each remaining line is split on
// the first "=", and surrounding whitespace and quote characters are
// stripped from the value. Keys present in env before the call are
// left alone; within the block a later line overwrites an earlier one.
// Returns the number of distinct keys added.
func ParseDotEnv(block string, env map[string]string) int {
	preset := make(map[string]bool, len(env))
	for k := range env {
		preset[k] = true
	}
	added := make(map[string]bool)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if preset[k] {
			continue
		}
		env[k] = unquote(strings.TrimSpace(v))
		added[k] = true
	}
	return len(added)
}

// unquote drops one leading and one trailing quote character.
func unquote(v string) string {
	if v != "" && (v[0] == '"' || v[0] == '\'') {
		v = v[1:]
	}
	if n := len(v); n > 0 && (v[n-1] == '"' || v[n-1] == '\'') {
		v = v[:n-1]
	}
	return v
}

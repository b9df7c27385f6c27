// Package env composes the environment handed to the worker process: the
// supervisor's own environment as the base, operator overrides from
// configuration on top. Override values may reference variables from the
// composed set with ${VAR}; unknown references are left verbatim.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Builder accumulates overrides for one worker launch.
type Builder struct {
	overrides Var
}

func New() *Builder {
	return &Builder{overrides: make(Var)}
}

// Set records an override K=V. Later calls for the same key win.
func (b *Builder) Set(k, v string) {
	if k == "" {
		return
	}
	b.overrides[k] = v
}

// SetPairs records overrides given as "KEY=value" strings, the form they
// take in configuration. Entries without '=' or with an empty key are
// dropped.
func (b *Builder) SetPairs(pairs []string) {
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			b.Set(kv[:i], kv[i+1:])
		}
	}
}

// Environ returns the merged environment as sorted KEY=value pairs. The
// base is read from the OS at call time; overrides replace base entries of
// the same key. Expansion applies to override values only, so inherited
// values pass through byte for byte.
func (b *Builder) Environ() []string {
	m := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range b.overrides {
		m[k] = v
	}
	// References resolve against the unexpanded set, so the result does not
	// depend on map iteration order.
	src := make(Var, len(m))
	for k, v := range m {
		src[k] = v
	}
	for k, v := range b.overrides {
		m[k] = expand(v, src)
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// expand replaces ${VAR} references left to right in a single pass, so a
// value produced by expansion is never expanded again. Unknown names and
// unterminated references stay as written.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var sb strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			sb.WriteString(s)
			break
		}
		j := strings.Index(s[i:], "}")
		if j < 0 {
			sb.WriteString(s)
			break
		}
		sb.WriteString(s[:i])
		name := s[i+2 : i+j]
		if v, ok := m[name]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
	return sb.String()
}

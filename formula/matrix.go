// Package formula describes the parameter space a recipe is built over.
package formula

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
)

// Matrix holds the values each setting (Require) and option (Options) may
// take. A single-valued matrix identifies exactly one build configuration.
type Matrix struct {
	Require map[string][]string
	Options map[string][]string
}

// Assignment is one point of a Matrix: a value for every key.
type Assignment struct {
	Require map[string]string
	Options map[string]string
}

// String renders a as a combination string: require values joined by "-"
// in key order, then "|" and the option values joined the same way.
func (a Assignment) String() string {
	req := joinValues(a.Require)
	opt := joinValues(a.Options)
	switch {
	case req == "":
		return opt
	case opt == "":
		return req
	}
	return req + "|" + opt
}

func joinValues(kv map[string]string) string {
	keys := slices.Sorted(maps.Keys(kv))
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = kv[k]
	}
	return strings.Join(vals, "-")
}

// expand returns the cartesian product of kvs. Keys are walked in sorted
// order so the first key varies slowest.
func expand(kvs map[string][]string) []map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	out := []map[string]string{{}}
	for _, k := range slices.Sorted(maps.Keys(kvs)) {
		next := make([]map[string]string, 0, len(out)*len(kvs[k]))
		for _, prev := range out {
			for _, v := range kvs[k] {
				m := maps.Clone(prev)
				m[k] = v
				next = append(next, m)
			}
		}
		out = next
	}
	return out
}

// Expand returns every assignment of the matrix, require combinations
// varying slowest.
func (m *Matrix) Expand() []Assignment {
	reqs := expand(m.Require)
	opts := expand(m.Options)
	switch {
	case len(reqs) == 0 && len(opts) == 0:
		return nil
	case len(reqs) == 0:
		reqs = []map[string]string{{}}
	case len(opts) == 0:
		opts = []map[string]string{{}}
	}
	out := make([]Assignment, 0, len(reqs)*len(opts))
	for _, r := range reqs {
		for _, o := range opts {
			out = append(out, Assignment{Require: r, Options: o})
		}
	}
	return out
}

// Combinations returns the combination string of every assignment.
func (m *Matrix) Combinations() []string {
	all := m.Expand()
	if len(all) == 0 {
		return nil
	}
	out := make([]string, len(all))
	for i, a := range all {
		out[i] = a.String()
	}
	return out
}

// CombinationCount returns the number of assignments without expanding them.
func (m *Matrix) CombinationCount() int {
	count := func(kvs map[string][]string) int {
		if len(kvs) == 0 {
			return 0
		}
		n := 1
		for _, v := range kvs {
			n *= len(v)
		}
		return n
	}
	r, o := count(m.Require), count(m.Options)
	switch {
	case r == 0:
		return o
	case o == 0:
		return r
	}
	return r * o
}

// String returns the first combination, which for a single-valued matrix is
// the only one.
func (m *Matrix) String() string {
	if c := m.Combinations(); len(c) > 0 {
		return c[0]
	}
	return ""
}

// Key returns a short stable hash of the matrix keys and values, suitable as
// a per-configuration directory name. Unlike String it distinguishes keys
// that happen to share a value.
func (m *Matrix) Key() string {
	h := sha256.New()
	for _, part := range []map[string][]string{m.Require, m.Options} {
		for _, k := range slices.Sorted(maps.Keys(part)) {
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(strings.Join(part[k], ",")))
			h.Write([]byte{0})
		}
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

package spawn

import "strings"

// envSet is an ordered key->value environment builder that preserves
// insertion order for keys not yet set and overwrites in place for keys
// that are, mirroring how arcterm.c's setenv(..., 1) vs setenv(..., 0)
// distinguishes "always override" from "only if unset".
type envSet struct {
	order []string
	index map[string]int // key -> position in order
	vals  map[string]string
}

func newEnvSet(initial []string) *envSet {
	e := &envSet{index: map[string]int{}, vals: map[string]string{}}
	for _, kv := range initial {
		key, val, _ := strings.Cut(kv, "=")
		e.set(key, val)
	}
	return e
}

// set overrides key unconditionally (setenv(key, val, 1)).
func (e *envSet) set(key, val string) {
	if _, ok := e.index[key]; ok {
		e.vals[key] = val
		return
	}
	e.index[key] = len(e.order)
	e.order = append(e.order, key)
	e.vals[key] = val
}

// setDefault sets key only if it is not already present (setenv(key, val, 0)).
func (e *envSet) setDefault(key, val string) {
	if _, ok := e.index[key]; ok {
		return
	}
	e.set(key, val)
}

func (e *envSet) list() []string {
	out := make([]string, 0, len(e.order))
	for _, k := range e.order {
		out = append(out, k+"="+e.vals[k])
	}
	return out
}

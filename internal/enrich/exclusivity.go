package enrich

import "slices"

// ExclusivityRules maps a leader resolver name to the resolver names it
// suppresses once it has contributed at least one field to a run.
type ExclusivityRules map[string][]string

// Blocked reports whether the resolver called name is suppressed given the
// trace so far. Suppression is one-way and a leader never blocks itself.
func (r ExclusivityRules) Blocked(name string, trace Trace) bool {
	for leader, blocked := range r {
		if leader == name || !slices.Contains(blocked, name) {
			continue
		}
		if trace.HasContributor(leader) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r ExclusivityRules) Clone() ExclusivityRules {
	out := make(ExclusivityRules, len(r))
	for k, v := range r {
		out[k] = slices.Clone(v)
	}
	return out
}

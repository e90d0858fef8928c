package resource

import (
	"sort"
	"strings"
)

// Scopes is a set of granted scopes.
type Scopes map[string]struct{}

// ParseScopes splits a space separated scope claim. Runs of whitespace are
// treated as one separator and empty entries are dropped.
func ParseScopes(scope string) Scopes {
	fields := strings.Fields(scope)
	scopes := make(Scopes, len(fields))
	for _, s := range fields {
		scopes[s] = struct{}{}
	}
	return scopes
}

func (s Scopes) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// Missing returns the required scopes not present in s, in the order given.
func (s Scopes) Missing(required []string) []string {
	var missing []string
	for _, r := range required {
		if !s.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// List returns the scopes sorted.
func (s Scopes) List() []string {
	list := make([]string, 0, len(s))
	for scope := range s {
		list = append(list, scope)
	}
	sort.Strings(list)
	return list
}

func (s Scopes) String() string {
	return strings.Join(s.List(), " ")
}

// normalizeRequired drops blanks and duplicates, keeping first-seen order.
func normalizeRequired(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	var out []string
	for _, s := range scopes {
		for _, f := range strings.Fields(s) {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

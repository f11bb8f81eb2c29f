package points

import (
	"fmt"
	"sort"
	"strings"
)

// Issue is a configuration problem found while building the index.
// Issues never stop the resolver from serving the well-formed entries.
type Issue struct {
	LogicalKey string
	ExternalID string
	Problem    string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s (key=%q id=%q)", i.Problem, i.LogicalKey, i.ExternalID)
}

// Resolver is a bidirectional index between logical keys and external ids.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	forward    map[string]Definition // logical key -> definition
	reverse    map[string]string     // external id -> logical key
	scopes     map[string]Scope      // scope name -> scope (points unused)
	order      []string              // logical keys in registration order
	privileged map[string]bool
}

// NewResolver indexes t. A nil table yields an empty resolver.
func NewResolver(t *Table) (*Resolver, []Issue) {
	r := &Resolver{
		forward:    make(map[string]Definition),
		reverse:    make(map[string]string),
		scopes:     make(map[string]Scope),
		privileged: make(map[string]bool),
	}
	if t == nil {
		return r, nil
	}

	var issues []Issue
	for _, def := range t.Points {
		def.Scope = ""
		def.LogicalKey = def.Key
		issues = r.register(def, issues)
	}

	for _, scope := range t.Scopes {
		name := strings.TrimSpace(scope.Name)
		if name == "" || name == AppScope || strings.Contains(name, ".") {
			issues = append(issues, Issue{Problem: fmt.Sprintf("invalid scope name %q", scope.Name)})
			continue
		}
		if _, dup := r.scopes[name]; dup {
			issues = append(issues, Issue{Problem: fmt.Sprintf("duplicate scope %q", name)})
			continue
		}
		r.scopes[name] = Scope{Name: name, Privileged: scope.Privileged}
		r.privileged[name] = scope.Privileged

		for _, def := range scope.Points {
			def.Scope = name
			def.LogicalKey = name + "." + def.Key
			issues = r.register(def, issues)
		}
	}

	return r, issues
}

func (r *Resolver) register(def Definition, issues []Issue) []Issue {
	switch {
	case def.Key == "":
		return append(issues, Issue{ExternalID: def.ID, Problem: "missing key"})
	case def.ID == "":
		return append(issues, Issue{LogicalKey: def.LogicalKey, Problem: "missing id"})
	}

	if _, dup := r.forward[def.LogicalKey]; dup {
		return append(issues, Issue{LogicalKey: def.LogicalKey, ExternalID: def.ID, Problem: "duplicate logical key, first mapping kept"})
	}
	if owner, dup := r.reverse[def.ID]; dup {
		return append(issues, Issue{
			LogicalKey: def.LogicalKey,
			ExternalID: def.ID,
			Problem:    fmt.Sprintf("external id already mapped to %q, first mapping kept", owner),
		})
	}

	r.forward[def.LogicalKey] = def
	r.reverse[def.ID] = def.LogicalKey
	r.order = append(r.order, def.LogicalKey)
	return issues
}

// Resolve returns the external id of a logical key.
func (r *Resolver) Resolve(logicalKey string) (string, bool) {
	def, ok := r.forward[logicalKey]
	return def.ID, ok
}

// ResolveScoped resolves key within scope. AppScope (or "") addresses the
// flat table. It returns the full logical key alongside the external id.
func (r *Resolver) ResolveScoped(scope, key string) (logicalKey, externalID string, ok bool) {
	logicalKey = key
	if scope != "" && scope != AppScope {
		if _, known := r.scopes[scope]; !known {
			return "", "", false
		}
		logicalKey = scope + "." + key
	}

	def, ok := r.forward[logicalKey]
	if !ok || def.Scope != normalizeScope(scope) {
		return "", "", false
	}
	return logicalKey, def.ID, true
}

func normalizeScope(scope string) string {
	if scope == AppScope {
		return ""
	}
	return scope
}

// Reverse returns the logical key an external id is mirrored into.
func (r *Resolver) Reverse(externalID string) (string, bool) {
	key, ok := r.reverse[externalID]
	return key, ok
}

// Definition returns the configured point for a logical key.
func (r *Resolver) Definition(logicalKey string) (Definition, bool) {
	def, ok := r.forward[logicalKey]
	return def, ok
}

// Keys returns all logical keys in registration order.
func (r *Resolver) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns all definitions in registration order.
func (r *Resolver) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.forward[key])
	}
	return out
}

// IsPrivileged reports whether writes into scope need a session.
func (r *Resolver) IsPrivileged(scope string) bool {
	return r.privileged[scope]
}

// HasScope reports whether scope is configured. AppScope always exists.
func (r *Resolver) HasScope(scope string) bool {
	if scope == "" || scope == AppScope {
		return true
	}
	_, ok := r.scopes[scope]
	return ok
}

// Scopes returns the configured scopes, without points, sorted by name.
func (r *Resolver) Scopes() []Scope {
	out := make([]Scope, 0, len(r.scopes))
	for _, sc := range r.scopes {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of mapped points.
func (r *Resolver) Len() int {
	return len(r.order)
}

package models

// Resolver turns a task category and user preferences into the ordered list of
// model ids to attempt.
type Resolver struct {
	registry *Registry
	chains   *ChainTable
}

// NewResolver creates a resolver over read-only registries.
func NewResolver(registry *Registry, chains *ChainTable) *Resolver {
	return &Resolver{registry: registry, chains: chains}
}

// Resolve returns the candidate list for task, highest priority first:
//
//  1. the user's override for task
//  2. the static chain for task
//  3. the complexity safety net
//  4. the terminal structured model
//
// Ids are deduplicated as each tier is appended. Overrides that are not in
// the registry are dropped. An unknown task resolves as TaskChat. The result
// is never empty.
func (r *Resolver) Resolve(task TaskCategory, prefs UserPreferences) []string {
	if !task.Valid() {
		task = TaskChat
	}

	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		canonical, ok := r.registry.Canonical(id)
		if !ok || seen[canonical] {
			return
		}
		seen[canonical] = true
		out = append(out, canonical)
	}

	if override, ok := prefs.Override(task); ok {
		add(override)
	}
	for _, id := range r.chains.Chain(task) {
		add(id)
	}
	add(r.chains.SafetyNet(task))
	add(r.chains.TerminalModel())

	// An override can pull the only structured ids to the front; the terminal
	// model then moves back to the end.
	if last, ok := r.registry.Get(out[len(out)-1]); ok && !last.IsStructured() {
		terminal := r.chains.TerminalModel()
		trimmed := out[:0]
		for _, id := range out {
			if id != terminal {
				trimmed = append(trimmed, id)
			}
		}
		out = append(trimmed, terminal)
	}

	return out
}

// Registry returns the registry the resolver reads from.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

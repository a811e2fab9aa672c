package tool

// RegistryOptions selects which catalog tools end up in a Registry.
type RegistryOptions struct {
	// Requested names the wanted tools. Names missing from the catalog are dropped.
	Requested []string
	// All selects every catalog tool and ignores Requested.
	All bool
	// Mandatory names are always included when present in the catalog.
	Mandatory []string
	// Extra tools are bound directly, e.g. a tool tied to a live transport session.
	// They take precedence over catalog tools of the same name.
	Extra []Tool
}

// Registry is the immutable name→Tool mapping of a single agent instance.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry builds a registry from catalog. With no options the registry is empty.
//
// Example:
//
//	reg := tool.NewRegistry(secondary, func(o *tool.RegistryOptions) {
//	  o.Requested = []string{"calculator", "unknown_tool"} // unknown_tool is dropped
//	  o.Mandatory = []string{"read_notes"}
//	})
func NewRegistry(catalog *Catalog, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{tools: map[string]Tool{}}

	if catalog != nil {
		wanted := make(map[string]bool, len(opts.Requested)+len(opts.Mandatory))
		for _, n := range opts.Requested {
			wanted[n] = true
		}

		for _, n := range opts.Mandatory {
			wanted[n] = true
		}

		for _, n := range catalog.order {
			if opts.All || wanted[n] {
				r.add(catalog.tools[n])
			}
		}
	}

	for _, t := range opts.Extra {
		if t != nil && t.Name() != "" {
			r.add(t)
		}
	}

	return r
}

// NewRegistryFromTools builds a registry holding exactly tools.
func NewRegistryFromTools(tools ...Tool) *Registry {
	return NewRegistry(nil, func(o *RegistryOptions) { o.Extra = tools })
}

func (r *Registry) add(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}

	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns registered names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Tools returns registered tools in insertion order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}

	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

package tool

import (
	"errors"
	"fmt"
)

// ErrInvalidCatalog is returned for nil tools, empty names or duplicate names.
var ErrInvalidCatalog = errors.New("invalid tool catalog")

// Catalog is the validated, ordered set of tools a run can draw registries from.
type Catalog struct {
	order []string
	tools map[string]Tool
}

// NewCatalog validates tools and keeps their order.
func NewCatalog(tools ...Tool) (*Catalog, error) {
	c := &Catalog{tools: make(map[string]Tool, len(tools))}

	for i, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("%w: tool #%d is nil", ErrInvalidCatalog, i)
		}

		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: tool #%d has an empty name", ErrInvalidCatalog, i)
		}

		if _, dup := c.tools[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %q", ErrInvalidCatalog, name)
		}

		c.tools[name] = t
		c.order = append(c.order, name)
	}

	return c, nil
}

// MustCatalog is NewCatalog that panics on invalid input; meant for static tool sets.
func MustCatalog(tools ...Tool) *Catalog {
	c, err := NewCatalog(tools...)
	if err != nil {
		panic(err)
	}

	return c
}

// Get looks up a tool by name.
func (c *Catalog) Get(name string) (Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Names returns tool names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)

	return out
}

// Tools returns the tools in catalog order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.tools[n])
	}

	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.order) }

// With returns a new catalog holding c's tools followed by extra.
func (c *Catalog) With(extra ...Tool) (*Catalog, error) {
	return NewCatalog(append(c.Tools(), extra...)...)
}

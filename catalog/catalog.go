// Package catalog holds the set of event types the mirror subscribes to and
// validates event data against their JSON Schemas.
package catalog

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownType is returned for event types that were never registered.
var ErrUnknownType = errors.New("mirror: unknown event type")

// Catalog is the in-memory registry of subscribed event types. The built-in
// user types are always present; additional types are appended in
// registration order.
type Catalog struct {
	mu        sync.RWMutex
	defs      map[string]*Definition
	order     []string
	validator *Validator
}

// New returns a Catalog holding the built-in user types plus one pass-through
// definition for each additional type name.
func New(additional ...string) *Catalog {
	c := &Catalog{
		defs:      make(map[string]*Definition),
		validator: NewValidator(),
	}
	for _, def := range builtinDefinitions() {
		c.put(def)
	}
	for _, name := range additional {
		if name == "" {
			continue
		}
		if _, ok := c.defs[name]; ok {
			continue
		}
		c.put(Definition{Name: name})
	}
	return c
}

// Register adds or replaces a non-builtin definition.
func (c *Catalog) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("catalog: definition name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.defs[def.Name]; ok && existing.Builtin {
		return fmt.Errorf("catalog: %s is a built-in type", def.Name)
	}
	def.Builtin = false
	c.put(def)
	return nil
}

func (c *Catalog) put(def Definition) {
	if _, ok := c.defs[def.Name]; !ok {
		c.order = append(c.order, def.Name)
	}
	d := def
	c.defs[def.Name] = &d
}

// Get returns the definition registered under name.
func (c *Catalog) Get(name string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	cp := *def
	return &cp, nil
}

// Names returns every subscribed type: built-ins first, then additional
// types in registration order. This is the type filter used for catch-up.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Definitions returns a snapshot of all definitions in Names order.
func (c *Catalog) Definitions() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Definition, 0, len(c.order))
	for _, name := range c.order {
		cp := *c.defs[name]
		out = append(out, &cp)
	}
	return out
}

// Validate checks data against the schema registered for eventType.
// Types without a schema always pass.
func (c *Catalog) Validate(eventType string, data map[string]any) error {
	def, err := c.Get(eventType)
	if err != nil {
		return err
	}
	if len(def.Schema) == 0 {
		return nil
	}
	return c.validator.Validate(def.Schema, data)
}

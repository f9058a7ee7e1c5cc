// Package registry implements the object registry a patchbay node serves:
// named objects whose methods are callable from the wire and whose fields
// are readable as properties.
//
// Objects are registered once at startup. After that the registry is
// read-only in shape; the objects themselves may carry mutable state, which
// the dispatch layer serializes behind its guard.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Lookup failures as they appear on the wire. The texts are protocol
// constants shared with remote clients; do not reword them.
var (
	ErrObjectNotFound   = errors.New("Object not found in registry.")
	ErrMethodNotFound   = errors.New("Method not found in object.")
	ErrPropertyNotFound = errors.New("Property not found in object.")
	ErrInvalidQuery     = errors.New("Invalid metadata request.")
)

// Callable is one invocable method of a registered object.
type Callable interface {
	// Call invokes the method with positional and keyword arguments. Errors
	// report argument binding problems or whatever the method itself
	// returned; their text is surfaced verbatim to the remote caller.
	Call(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

	// Doc returns the method docstring, empty when undocumented.
	Doc() string

	// Signature renders the parameter list, e.g. "(x, y)".
	Signature() string
}

// Object is the capability set the dispatcher and the introspector need
// from a registered object. Anything implementing it can be registered
// directly; plain Go values are adapted via Expose.
type Object interface {
	Doc() string
	Method(name string) (Callable, bool)
	Methods() []string
	Property(name string) (interface{}, bool)
	Properties() []string
}

// Resolver is the read-side capability consumed by the dispatch layer.
type Resolver interface {
	Resolve(name string) (Object, bool)
	Names() []string
}

// Registry maps object names to objects, preserving registration order.
type Registry struct {
	mtx     sync.RWMutex
	names   []string
	objects map[string]Object
}

var _ Resolver = (*Registry)(nil)

// New returns an empty registry.
func New() *Registry {
	return &Registry{objects: make(map[string]Object)}
}

// Register exposes impl under the given name. If impl already implements
// Object it is used as-is and opts are ignored; otherwise an Object is
// derived from it by reflection (see Expose).
func (r *Registry) Register(name string, impl interface{}, opts ...ObjectOption) error {
	if name == "" {
		return errors.New("registry: empty object name")
	}
	if impl == nil {
		return fmt.Errorf("registry: object %q is nil", name)
	}

	obj, ok := impl.(Object)
	if !ok {
		var err error
		obj, err = Expose(impl, opts...)
		if err != nil {
			return fmt.Errorf("registry: object %q: %w", name, err)
		}
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, dup := r.objects[name]; dup {
		return fmt.Errorf("registry: duplicate object name %q", name)
	}
	r.objects[name] = obj
	r.names = append(r.names, name)
	return nil
}

// MustRegister is Register that panics on error, for static startup wiring.
func (r *Registry) MustRegister(name string, impl interface{}, opts ...ObjectOption) {
	if err := r.Register(name, impl, opts...); err != nil {
		panic(err)
	}
}

// Resolve returns the object registered under name.
func (r *Registry) Resolve(name string) (Object, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	obj, ok := r.objects[name]
	return obj, ok
}

// Names lists the registered object names in registration order.
func (r *Registry) Names() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

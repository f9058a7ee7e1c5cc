package registry

import (
	"context"
)

// Introspection query and reply keys. The dunder names are protocol
// constants inherited by every client that renders remote docstrings.
const (
	queryObject   = "object"
	queryProperty = "property"
	queryResolve  = "resolve"

	replyObjects    = "objects"
	replyDoc        = "__doc__"
	replyMethods    = "methods"
	replyProperties = "properties"
	replySignature  = "__signature__"
)

// Introspector answers metadata queries about a registry: the slow path of
// the wire protocol. Clients use it to enumerate objects, discover methods
// and properties, read property values, and bootstrap local proxies.
type Introspector struct {
	reg Resolver
}

// NewIntrospector returns an Introspector over reg.
func NewIntrospector(reg Resolver) *Introspector {
	return &Introspector{reg: reg}
}

// Describe interprets a metadata query:
//
//	{}                                  object name listing
//	{"object": O}                       object summary (doc, methods, properties)
//	{"object": O, "property": P}        property value, or a method descriptor
//	{"object": O, "resolve": true}      full object description in one shot
//
// Unrecognized extra keys are ignored. Errors carry the wire-protocol
// message texts.
func (in *Introspector) Describe(ctx context.Context, query map[string]interface{}) (interface{}, error) {
	rawObj, objPresent := query[queryObject]
	rawProp, propPresent := query[queryProperty]
	resolve, _ := query[queryResolve].(bool)

	if !objPresent {
		if propPresent || resolve {
			return nil, ErrInvalidQuery
		}
		names := in.reg.Names()
		objects := make([]interface{}, len(names))
		for i, name := range names {
			objects[i] = name
		}
		return map[string]interface{}{replyObjects: objects}, nil
	}

	objName, ok := rawObj.(string)
	if !ok {
		return nil, ErrObjectNotFound
	}
	obj, ok := in.reg.Resolve(objName)
	if !ok {
		return nil, ErrObjectNotFound
	}

	if propPresent {
		propName, ok := rawProp.(string)
		if !ok {
			return nil, ErrPropertyNotFound
		}
		if m, ok := obj.Method(propName); ok {
			return methodDescriptor(m), nil
		}
		if v, ok := obj.Property(propName); ok {
			return v, nil
		}
		return nil, ErrPropertyNotFound
	}

	if resolve {
		methods := make(map[string]interface{}, len(obj.Methods()))
		for _, name := range obj.Methods() {
			m, _ := obj.Method(name)
			methods[name] = methodDescriptor(m)
		}
		props := make(map[string]interface{}, len(obj.Properties()))
		for _, name := range obj.Properties() {
			v, _ := obj.Property(name)
			props[name] = v
		}
		return map[string]interface{}{
			replyDoc:        docOrNil(obj.Doc()),
			replyMethods:    methods,
			replyProperties: props,
		}, nil
	}

	return map[string]interface{}{
		replyDoc:        docOrNil(obj.Doc()),
		replyMethods:    stringList(obj.Methods()),
		replyProperties: stringList(obj.Properties()),
	}, nil
}

func methodDescriptor(m Callable) map[string]interface{} {
	return map[string]interface{}{
		replyDoc:       docOrNil(m.Doc()),
		replySignature: m.Signature(),
	}
}

func docOrNil(doc string) interface{} {
	if doc == "" {
		return nil
	}
	return doc
}

func stringList(names []string) []interface{} {
	out := make([]interface{}, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}

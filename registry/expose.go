package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// ObjectOption configures an object derived by Expose.
type ObjectOption func(*objectOptions)

type objectOptions struct {
	doc        string
	methodDocs map[string]string
}

// WithDoc attaches a docstring to the object, reported by introspection.
func WithDoc(doc string) ObjectOption {
	return func(o *objectOptions) { o.doc = doc }
}

// WithMethodDoc attaches a docstring to one of the object's methods. Expose
// fails if no such method ends up exposed, so typos surface at startup.
func WithMethodDoc(method, doc string) ObjectOption {
	return func(o *objectOptions) {
		if o.methodDocs == nil {
			o.methodDocs = make(map[string]string)
		}
		o.methodDocs[method] = doc
	}
}

// Expose derives an Object from a plain Go value by reflection.
//
// Methods become callable when they have one of the shapes
//
//	func (T) M(ctx context.Context) error
//	func (T) M(ctx context.Context) (R, error)
//	func (T) M(ctx context.Context, params S) error
//	func (T) M(ctx context.Context, params S) (R, error)
//
// where S is a struct (or pointer to struct) whose exported fields are the
// method's parameters: positionally in declaration order, by name through
// their json tags (the field name when untagged). Exported methods with any
// other shape are skipped. Pass a pointer if the object has pointer-receiver
// methods.
//
// If the value is a struct or pointer to struct, its exported fields become
// readable properties.
func Expose(impl interface{}, opts ...ObjectOption) (Object, error) {
	var options objectOptions
	for _, opt := range opts {
		opt(&options)
	}

	v := reflect.ValueOf(impl)
	if !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
		return nil, errors.New("nil value")
	}

	obj := &reflectObject{
		doc:     options.doc,
		methods: make(map[string]*reflectMethod),
		props:   make(map[string]reflect.Value),
	}

	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.PkgPath != "" {
			continue
		}
		rm, ok := parseMethod(v.Method(i))
		if !ok {
			continue
		}
		rm.name = m.Name
		rm.doc = options.methodDocs[m.Name]
		obj.methods[m.Name] = rm
		obj.methodNames = append(obj.methodNames, m.Name)
	}

	for name := range options.methodDocs {
		if _, ok := obj.methods[name]; !ok {
			return nil, fmt.Errorf("WithMethodDoc: no exposed method %q", name)
		}
	}

	sv := v
	for sv.Kind() == reflect.Ptr {
		sv = sv.Elem()
	}
	if sv.Kind() == reflect.Struct {
		st := sv.Type()
		for i := 0; i < st.NumField(); i++ {
			f := st.Field(i)
			if f.PkgPath != "" || f.Anonymous {
				continue
			}
			name := fieldName(f)
			if name == "" {
				continue
			}
			obj.props[name] = sv.Field(i)
			obj.propNames = append(obj.propNames, name)
		}
	}

	if len(obj.methods) == 0 && len(obj.props) == 0 {
		return nil, errors.New("no exposable methods or properties")
	}

	sort.Strings(obj.methodNames)
	sort.Strings(obj.propNames)
	return obj, nil
}

type reflectObject struct {
	doc         string
	methods     map[string]*reflectMethod
	methodNames []string
	props       map[string]reflect.Value
	propNames   []string
}

var _ Object = (*reflectObject)(nil)

func (o *reflectObject) Doc() string { return o.doc }

func (o *reflectObject) Method(name string) (Callable, bool) {
	m, ok := o.methods[name]
	if !ok {
		return nil, false
	}
	return m, true
}

func (o *reflectObject) Methods() []string { return o.methodNames }

// Property returns the current value of the named field. Reads are
// snapshots; the dispatch guard is what keeps them consistent with method
// calls that mutate the object.
func (o *reflectObject) Property(name string) (interface{}, bool) {
	fv, ok := o.props[name]
	if !ok {
		return nil, false
	}
	return fv.Interface(), true
}

func (o *reflectObject) Properties() []string { return o.propNames }

type paramField struct {
	name string
	idx  []int
}

type paramSet struct {
	typ    reflect.Type
	ptr    bool
	fields []paramField
	byName map[string]int
}

type reflectMethod struct {
	name      string
	doc       string
	fn        reflect.Value
	params    *paramSet
	hasResult bool
}

var _ Callable = (*reflectMethod)(nil)

func parseMethod(fn reflect.Value) (*reflectMethod, bool) {
	t := fn.Type()
	if t.IsVariadic() || t.NumIn() < 1 || t.NumIn() > 2 {
		return nil, false
	}
	if t.In(0) != ctxType {
		return nil, false
	}

	var hasResult bool
	switch t.NumOut() {
	case 1:
		if t.Out(0) != errType {
			return nil, false
		}
	case 2:
		if t.Out(1) != errType {
			return nil, false
		}
		hasResult = true
	default:
		return nil, false
	}

	var params *paramSet
	if t.NumIn() == 2 {
		pt := t.In(1)
		ptr := false
		if pt.Kind() == reflect.Ptr {
			ptr = true
			pt = pt.Elem()
		}
		if pt.Kind() != reflect.Struct {
			return nil, false
		}
		params = &paramSet{typ: pt, ptr: ptr, byName: make(map[string]int)}
		for i := 0; i < pt.NumField(); i++ {
			f := pt.Field(i)
			if f.PkgPath != "" {
				continue
			}
			name := fieldName(f)
			if name == "" {
				continue
			}
			params.byName[name] = len(params.fields)
			params.fields = append(params.fields, paramField{name: name, idx: f.Index})
		}
	}

	return &reflectMethod{fn: fn, params: params, hasResult: hasResult}, true
}

func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("json"); ok {
		name := strings.Split(tag, ",")[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

func (m *reflectMethod) Doc() string { return m.doc }

func (m *reflectMethod) Signature() string {
	if m.params == nil {
		return "()"
	}
	names := make([]string, len(m.params.fields))
	for i, f := range m.params.fields {
		names[i] = f.name
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// Call binds args and kwargs onto the method's parameter struct and invokes
// it. Panics inside the method are recovered and reported as errors so a
// misbehaving object cannot take down the request loop.
func (m *reflectMethod) Call(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("method %s panicked: %v", m.name, r)
		}
	}()

	in := []reflect.Value{reflect.ValueOf(ctx)}

	if m.params == nil {
		if len(args) > 0 || len(kwargs) > 0 {
			return nil, fmt.Errorf("%s() takes no arguments (%d positional, %d keyword given)",
				m.name, len(args), len(kwargs))
		}
	} else {
		pv, err := m.params.bind(m.name, args, kwargs)
		if err != nil {
			return nil, err
		}
		in = append(in, pv)
	}

	out := m.fn.Call(in)

	errVal := out[len(out)-1]
	if !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	if m.hasResult {
		return out[0].Interface(), nil
	}
	return nil, nil
}

func (ps *paramSet) bind(method string, args []interface{}, kwargs map[string]interface{}) (reflect.Value, error) {
	pv := reflect.New(ps.typ).Elem()

	if len(args) > len(ps.fields) {
		return reflect.Value{}, fmt.Errorf("%s() takes at most %d positional arguments (%d given)",
			method, len(ps.fields), len(args))
	}
	for i, a := range args {
		if err := ps.setField(pv, ps.fields[i], a); err != nil {
			return reflect.Value{}, err
		}
	}
	for k, val := range kwargs {
		i, ok := ps.byName[k]
		if !ok {
			return reflect.Value{}, fmt.Errorf("%s() got an unexpected keyword argument %q", method, k)
		}
		if i < len(args) {
			return reflect.Value{}, fmt.Errorf("%s() got multiple values for argument %q", method, k)
		}
		if err := ps.setField(pv, ps.fields[i], val); err != nil {
			return reflect.Value{}, err
		}
	}

	if ps.ptr {
		return pv.Addr(), nil
	}
	return pv, nil
}

// setField assigns a decoded wire value to a parameter struct field. Values
// pass through a JSON round-trip, which is codec-agnostic: every codec
// decodes into the same generic shapes.
func (ps *paramSet) setField(pv reflect.Value, f paramField, val interface{}) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("argument %q: %v", f.name, err)
	}
	if err := json.Unmarshal(raw, pv.FieldByIndex(f.idx).Addr().Interface()); err != nil {
		return fmt.Errorf("argument %q: %v", f.name, err)
	}
	return nil
}

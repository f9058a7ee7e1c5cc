// Package dispatch implements the patchbay call protocol: it classifies
// decoded request payloads, invokes registry objects under the process
// guard, executes batches with early-bail padding, captures per-call
// warnings, and shapes the wire envelopes a codec encodes.
package dispatch

import (
	"context"

	"github.com/patchbay-rpc/patchbay/libs/log"
	"github.com/patchbay-rpc/patchbay/registry"
)

// Request payload keys.
const (
	fieldObject = "object"
	fieldMethod = "method"
	fieldArgs   = "args"
	fieldKwargs = "kwargs"
)

// Failure texts that are part of the wire protocol. Clients match on them;
// do not reword.
const (
	msgArgsNotArray    = "'args' wasn't an array."
	msgKwargsNotObject = "'kwargs' wasn't an object."
	msgUnexpectedType  = "Unexpected type in request."
	msgPrecedingCall   = "Something went wrong in a preceding call."
)

// Kind classifies a decoded request payload.
type Kind int

const (
	// KindInvalid marks scalars, null, and every other non-protocol shape.
	KindInvalid Kind = iota
	// KindCall is a mapping naming both an object and a method.
	KindCall
	// KindMetadata is any other mapping, handed to the slow-path delegate.
	KindMetadata
	// KindBatch is an ordered sequence of independent requests.
	KindBatch
)

// Classify applies the protocol's shape rules to a decoded value. Only the
// presence of the "object" and "method" keys matters here, never their
// values, and nothing is invoked.
func Classify(v interface{}) Kind {
	switch t := v.(type) {
	case map[string]interface{}:
		if _, ok := t[fieldObject]; ok {
			if _, ok := t[fieldMethod]; ok {
				return KindCall
			}
		}
		return KindMetadata
	case []interface{}:
		return KindBatch
	default:
		return KindInvalid
	}
}

// Describer is the slow-path boundary. The dispatcher forwards every
// mapping it recognizes as metadata to a Describer and wraps whatever comes
// back, so introspection shapes stay out of the dispatch core.
type Describer interface {
	Describe(ctx context.Context, query map[string]interface{}) (interface{}, error)
}

// RequestOptions carry per-request protocol options from the transport.
type RequestOptions struct {
	// ContinueOnError disables batch early-bail: every element executes
	// and reports its real outcome.
	ContinueOnError bool
}

// Dispatcher executes classified requests against a registry. Create one
// per process; it owns the concurrency guard and the metrics.
type Dispatcher struct {
	reg     registry.Resolver
	desc    Describer
	guard   *Guard
	logger  log.Logger
	metrics *Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger. Defaults to a nop logger.
func WithLogger(logger log.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the dispatcher's metrics collectors. Defaults to no-op
// metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDescriber replaces the slow-path delegate. Defaults to the registry
// introspector.
func WithDescriber(desc Describer) Option {
	return func(d *Dispatcher) { d.desc = desc }
}

// New returns a Dispatcher serving reg.
func New(reg registry.Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		desc:    registry.NewIntrospector(reg),
		guard:   NewGuard(),
		logger:  log.NewNopLogger(),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.guard.wait = d.metrics.GuardWait
	return d
}

// Guard returns the dispatcher's concurrency guard. The transport holds it
// around decode, dispatch, and encode for each request.
func (d *Dispatcher) Guard() *Guard { return d.guard }

// Handle executes one decoded request payload and returns the wire-shaped
// reply for the codec: a single envelope map, or a slice of envelopes
// exactly as long as the incoming batch. Callers must hold the Guard.
//
// Handle never fails out of band. Every fault, including a panicking
// dispatcher bug, comes back as an in-band failure envelope.
func (d *Dispatcher) Handle(ctx context.Context, v interface{}, opts RequestOptions) (reply interface{}) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch fault", "panic", r)
			reply = failuref("internal dispatch fault: %v", r).Envelope()
		}
	}()

	d.metrics.Requests.Add(1)

	if Classify(v) == KindBatch {
		responses := d.ExecuteBatch(ctx, v.([]interface{}), opts)
		envelopes := make([]interface{}, len(responses))
		for i, resp := range responses {
			envelopes[i] = resp.Envelope()
		}
		return envelopes
	}
	return d.Dispatch(ctx, v).Envelope()
}

// Dispatch classifies and executes a single request element. Batches are
// not elements; a nested sequence comes back as a type failure. Faults in
// the dispatcher itself are confined to the element's own response, so in a
// batch they trip the bail flag instead of killing the request.
func (d *Dispatcher) Dispatch(ctx context.Context, v interface{}) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch fault", "panic", r)
			resp = failuref("internal dispatch fault: %v", r)
		}
	}()

	switch Classify(v) {
	case KindCall:
		return d.call(ctx, v.(map[string]interface{}))
	case KindMetadata:
		return d.describe(ctx, v.(map[string]interface{}))
	default:
		return Failure(msgUnexpectedType)
	}
}

// ExecuteBatch runs an ordered batch and returns one response per element,
// in order, always exactly len(batch) of them. After the first failure the
// remaining elements are not executed; their slots carry the fixed padding
// failure instead. Opts can disable the bail.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, batch []interface{}, opts RequestOptions) []*Response {
	d.metrics.BatchSize.Observe(float64(len(batch)))

	responses := make([]*Response, len(batch))
	bailed := false
	for i, elem := range batch {
		if bailed {
			responses[i] = Failure(msgPrecedingCall)
			d.metrics.PaddedCalls.Add(1)
			continue
		}
		resp := d.Dispatch(ctx, elem)
		if resp.Failed() && !opts.ContinueOnError {
			bailed = true
		}
		responses[i] = resp
	}
	return responses
}

// call runs the fast path: shape checks, two lookups, then the invocation.
func (d *Dispatcher) call(ctx context.Context, req map[string]interface{}) *Response {
	// Argument shapes are validated before anything is resolved, so a
	// malformed call fails the same way whether or not its target exists.
	var args []interface{}
	if raw, ok := req[fieldArgs]; ok {
		a, ok := raw.([]interface{})
		if !ok {
			return Failure(msgArgsNotArray)
		}
		args = a
	}
	var kwargs map[string]interface{}
	if raw, ok := req[fieldKwargs]; ok {
		kw, ok := raw.(map[string]interface{})
		if !ok {
			return Failure(msgKwargsNotObject)
		}
		kwargs = kw
	}

	objName, _ := req[fieldObject].(string)
	obj, ok := d.reg.Resolve(objName)
	if !ok {
		return Failure(registry.ErrObjectNotFound.Error())
	}
	methodName, _ := req[fieldMethod].(string)
	method, ok := obj.Method(methodName)
	if !ok {
		return Failure(registry.ErrMethodNotFound.Error())
	}

	// The invocation proper. A fresh recorder scopes this call's warnings;
	// lookup failures above never reach it.
	rec := new(Recorder)
	callCtx := withRecorder(WithGuard(ctx, d.guard), rec)

	result, err := method.Call(callCtx, args, kwargs)

	var resp *Response
	if err != nil {
		d.logger.Debug("call failed", "object", objName, "method", methodName, "err", err)
		d.metrics.Calls.With("outcome", "error").Add(1)
		resp = Failure(err.Error())
	} else {
		d.metrics.Calls.With("outcome", "ok").Add(1)
		resp = Success(result)
	}
	resp.Warnings = rec.drain()
	d.metrics.Warnings.Add(float64(len(resp.Warnings)))
	return resp
}

// describe forwards a metadata query to the slow-path delegate. Warnings
// are captured here too: a custom Object may emit them while its properties
// are being read.
func (d *Dispatcher) describe(ctx context.Context, query map[string]interface{}) *Response {
	rec := new(Recorder)
	queryCtx := withRecorder(WithGuard(ctx, d.guard), rec)

	result, err := d.desc.Describe(queryCtx, query)

	var resp *Response
	if err != nil {
		d.metrics.Calls.With("outcome", "error").Add(1)
		resp = Failure(err.Error())
	} else {
		d.metrics.Calls.With("outcome", "ok").Add(1)
		resp = Success(result)
	}
	resp.Warnings = rec.drain()
	d.metrics.Warnings.Add(float64(len(resp.Warnings)))
	return resp
}

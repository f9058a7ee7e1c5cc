package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchbay-rpc/patchbay/libs/log"
	"github.com/patchbay-rpc/patchbay/registry"
	"github.com/patchbay-rpc/patchbay/rpc/dispatch"
)

type addParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// bench is the registry fixture for dispatcher tests. It records every
// method that actually ran so tests can prove what the bail logic skipped.
type bench struct {
	Slots int `json:"slots"`

	executed []string
}

func (b *bench) Add(ctx context.Context, p addParams) (float64, error) {
	b.executed = append(b.executed, "Add")
	return p.X + p.Y, nil
}

func (b *bench) Fail(ctx context.Context) error {
	b.executed = append(b.executed, "Fail")
	return errors.New("relay stuck open")
}

func (b *bench) Noisy(ctx context.Context) (string, error) {
	b.executed = append(b.executed, "Noisy")
	dispatch.Warn(ctx, "sensor drift detected")
	dispatch.Warnf(ctx, "gain %.1f out of range", 9.5)
	return "ok", nil
}

func (b *bench) Status(ctx context.Context) (map[string]interface{}, error) {
	b.executed = append(b.executed, "Status")
	return map[string]interface{}{"error": "latched", "code": 3.0}, nil
}

func (b *bench) Boom(ctx context.Context) error {
	b.executed = append(b.executed, "Boom")
	panic("fuse blown")
}

func newBenchRegistry(t testing.TB) (*registry.Registry, *bench) {
	t.Helper()
	b := &bench{Slots: 4}
	reg := registry.New()
	require.NoError(t, reg.Register("bench", b))
	return reg, b
}

func callElem(object, method string, args ...interface{}) map[string]interface{} {
	req := map[string]interface{}{"object": object, "method": method}
	if len(args) > 0 {
		req["args"] = args
	}
	return req
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		in   interface{}
		want dispatch.Kind
	}{
		{"call", map[string]interface{}{"object": "a", "method": "b"}, dispatch.KindCall},
		{"call with junk values", map[string]interface{}{"object": 1.0, "method": nil}, dispatch.KindCall},
		{"object only", map[string]interface{}{"object": "a"}, dispatch.KindMetadata},
		{"method only", map[string]interface{}{"method": "b"}, dispatch.KindMetadata},
		{"empty mapping", map[string]interface{}{}, dispatch.KindMetadata},
		{"sequence", []interface{}{1.0, 2.0}, dispatch.KindBatch},
		{"empty sequence", []interface{}{}, dispatch.KindBatch},
		{"string", "ping", dispatch.KindInvalid},
		{"number", 7.0, dispatch.KindInvalid},
		{"bool", true, dispatch.KindInvalid},
		{"null", nil, dispatch.KindInvalid},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, dispatch.Classify(tc.in))
		})
	}
}

func TestDispatchCall(t *testing.T) {
	testCases := []struct {
		name            string
		req             map[string]interface{}
		wantResult      interface{}
		wantErr         string
		wantErrContains string
	}{
		{
			name:       "positional args",
			req:        callElem("bench", "Add", 2.0, 3.0),
			wantResult: 5.0,
		},
		{
			name: "keyword args",
			req: map[string]interface{}{
				"object": "bench", "method": "Add",
				"kwargs": map[string]interface{}{"x": 1.5, "y": 2.0},
			},
			wantResult: 3.5,
		},
		{
			name:    "args not an array",
			req:     map[string]interface{}{"object": "bench", "method": "Add", "args": "nope"},
			wantErr: "'args' wasn't an array.",
		},
		{
			name:    "args null",
			req:     map[string]interface{}{"object": "bench", "method": "Add", "args": nil},
			wantErr: "'args' wasn't an array.",
		},
		{
			name:    "kwargs not an object",
			req:     map[string]interface{}{"object": "bench", "method": "Add", "kwargs": []interface{}{1.0}},
			wantErr: "'kwargs' wasn't an object.",
		},
		{
			name:    "unknown object",
			req:     callElem("ghost", "Add"),
			wantErr: "Object not found in registry.",
		},
		{
			name:    "non-string object name",
			req:     map[string]interface{}{"object": 7.0, "method": "Add"},
			wantErr: "Object not found in registry.",
		},
		{
			name:    "unknown method",
			req:     callElem("bench", "Vanish"),
			wantErr: "Method not found in object.",
		},
		{
			// Shape checks run before lookups, so a malformed call against a
			// missing object reports the shape problem.
			name:    "shape checked before lookup",
			req:     map[string]interface{}{"object": "ghost", "method": "Add", "args": "nope"},
			wantErr: "'args' wasn't an array.",
		},
		{
			name:    "method returns error",
			req:     callElem("bench", "Fail"),
			wantErr: "relay stuck open",
		},
		{
			name:            "method panics",
			req:             callElem("bench", "Boom"),
			wantErrContains: "panicked",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			reg, _ := newBenchRegistry(t)
			d := dispatch.New(reg, dispatch.WithLogger(log.NewTestingLogger(t)))

			resp := d.Dispatch(context.Background(), tc.req)
			switch {
			case tc.wantErr != "":
				require.True(t, resp.Failed())
				require.Equal(t, tc.wantErr, resp.Err.Message)
			case tc.wantErrContains != "":
				require.True(t, resp.Failed())
				require.Contains(t, resp.Err.Message, tc.wantErrContains)
			default:
				require.False(t, resp.Failed(), "unexpected failure: %v", resp.Err)
				require.Equal(t, tc.wantResult, resp.Result)
			}
		})
	}
}

func TestDispatchWarnings(t *testing.T) {
	reg, _ := newBenchRegistry(t)
	d := dispatch.New(reg)
	ctx := context.Background()

	resp := d.Dispatch(ctx, callElem("bench", "Noisy"))
	require.False(t, resp.Failed())
	require.Equal(t, []string{"sensor drift detected", "gain 9.5 out of range"}, resp.Warnings)

	// The next call starts with a clean recorder.
	resp = d.Dispatch(ctx, callElem("bench", "Add", 1.0, 1.0))
	require.False(t, resp.Failed())
	require.Empty(t, resp.Warnings)

	// In a batch, warnings stay on the element that emitted them.
	responses := d.ExecuteBatch(ctx, []interface{}{
		callElem("bench", "Noisy"),
		callElem("bench", "Add", 1.0, 1.0),
	}, dispatch.RequestOptions{})
	require.Len(t, responses, 2)
	require.Len(t, responses[0].Warnings, 2)
	require.Empty(t, responses[1].Warnings)

	// Outside an invocation the helpers are no-ops.
	dispatch.Warn(ctx, "dropped on the floor")
	dispatch.Warnf(ctx, "dropped %d", 2)
}

func TestDispatchMetadata(t *testing.T) {
	reg, _ := newBenchRegistry(t)
	d := dispatch.New(reg)
	ctx := context.Background()

	resp := d.Dispatch(ctx, map[string]interface{}{})
	require.False(t, resp.Failed())
	require.Equal(t, map[string]interface{}{"objects": []interface{}{"bench"}}, resp.Result)

	resp = d.Dispatch(ctx, map[string]interface{}{"object": "bench"})
	require.False(t, resp.Failed())
	summary, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, []interface{}{"Add", "Boom", "Fail", "Noisy", "Status"}, summary["methods"])
	require.Equal(t, []interface{}{"slots"}, summary["properties"])

	// Delegate errors come back in band, like any other failure.
	resp = d.Dispatch(ctx, map[string]interface{}{"object": "ghost"})
	require.True(t, resp.Failed())
	require.Equal(t, "Object not found in registry.", resp.Err.Message)
}

type panickyDescriber struct{}

func (panickyDescriber) Describe(ctx context.Context, query map[string]interface{}) (interface{}, error) {
	panic("introspector bug")
}

func TestDispatchFaultConfinement(t *testing.T) {
	reg, _ := newBenchRegistry(t)
	d := dispatch.New(reg,
		dispatch.WithLogger(log.NewTestingLogger(t)),
		dispatch.WithDescriber(panickyDescriber{}),
	)
	ctx := context.Background()

	resp := d.Dispatch(ctx, map[string]interface{}{"object": "bench"})
	require.True(t, resp.Failed())
	require.Contains(t, resp.Err.Message, "internal dispatch fault")

	// Inside a batch the fault stays on its element and trips the bail.
	responses := d.ExecuteBatch(ctx, []interface{}{
		map[string]interface{}{"object": "bench"},
		callElem("bench", "Add", 1.0, 1.0),
	}, dispatch.RequestOptions{})
	require.Len(t, responses, 2)
	require.Contains(t, responses[0].Err.Message, "internal dispatch fault")
	require.Equal(t, "Something went wrong in a preceding call.", responses[1].Err.Message)
}

func TestHandleShapes(t *testing.T) {
	reg, _ := newBenchRegistry(t)
	d := dispatch.New(reg)
	ctx := context.Background()
	opts := dispatch.RequestOptions{}

	// A single call yields a single envelope.
	reply := d.Handle(ctx, callElem("bench", "Add", 2.0, 3.0), opts)
	require.Equal(t, map[string]interface{}{"result": 5.0}, reply)

	// A result that contains an "error" key is still a plain success.
	reply = d.Handle(ctx, callElem("bench", "Status"), opts)
	env, ok := reply.(map[string]interface{})
	require.True(t, ok)
	require.NotContains(t, env, "error")
	require.Equal(t, map[string]interface{}{"error": "latched", "code": 3.0}, env["result"])

	// Scalars and null are not protocol shapes.
	for _, in := range []interface{}{42.0, "ping", true, nil} {
		reply = d.Handle(ctx, in, opts)
		require.Equal(t, map[string]interface{}{
			"error": map[string]interface{}{"message": "Unexpected type in request."},
		}, reply)
	}

	// A batch yields one envelope per element, in order.
	reply = d.Handle(ctx, []interface{}{
		callElem("bench", "Add", 1.0, 1.0),
		"junk",
		callElem("bench", "Add", 2.0, 2.0),
	}, opts)
	envelopes, ok := reply.([]interface{})
	require.True(t, ok)
	require.Len(t, envelopes, 3)
	require.Equal(t, map[string]interface{}{"result": 2.0}, envelopes[0])
	require.Equal(t, map[string]interface{}{
		"error": map[string]interface{}{"message": "Unexpected type in request."},
	}, envelopes[1])
	require.Equal(t, map[string]interface{}{
		"error": map[string]interface{}{"message": "Something went wrong in a preceding call."},
	}, envelopes[2])

	// An empty batch is a valid request with an empty reply.
	reply = d.Handle(ctx, []interface{}{}, opts)
	require.Equal(t, []interface{}{}, reply)

	// A nested sequence is not a valid batch element.
	reply = d.Handle(ctx, []interface{}{[]interface{}{}}, opts)
	envelopes, ok = reply.([]interface{})
	require.True(t, ok)
	require.Len(t, envelopes, 1)
	require.Equal(t, map[string]interface{}{
		"error": map[string]interface{}{"message": "Unexpected type in request."},
	}, envelopes[0])
}

func TestBatchBail(t *testing.T) {
	reg, b := newBenchRegistry(t)
	d := dispatch.New(reg)

	batch := []interface{}{
		callElem("bench", "Add", 1.0, 2.0),
		callElem("bench", "Fail"),
		callElem("bench", "Add", 3.0, 4.0),
		callElem("bench", "Noisy"),
	}
	responses := d.ExecuteBatch(context.Background(), batch, dispatch.RequestOptions{})
	require.Len(t, responses, 4)

	require.False(t, responses[0].Failed())
	require.Equal(t, 3.0, responses[0].Result)
	require.True(t, responses[1].Failed())
	require.Equal(t, "relay stuck open", responses[1].Err.Message)
	for _, resp := range responses[2:] {
		require.True(t, resp.Failed())
		require.Equal(t, "Something went wrong in a preceding call.", resp.Err.Message)
	}

	// Nothing past the failure ever ran.
	require.Equal(t, []string{"Add", "Fail"}, b.executed)
}

func TestBatchBailOnLookupFailure(t *testing.T) {
	reg, b := newBenchRegistry(t)
	d := dispatch.New(reg)

	responses := d.ExecuteBatch(context.Background(), []interface{}{
		callElem("ghost", "Poke"),
		callElem("bench", "Add", 1.0, 1.0),
	}, dispatch.RequestOptions{})
	require.Len(t, responses, 2)
	require.Equal(t, "Object not found in registry.", responses[0].Err.Message)
	require.Equal(t, "Something went wrong in a preceding call.", responses[1].Err.Message)
	require.Empty(t, b.executed)
}

func TestBatchContinueOnError(t *testing.T) {
	reg, b := newBenchRegistry(t)
	d := dispatch.New(reg)

	batch := []interface{}{
		callElem("bench", "Add", 1.0, 2.0),
		callElem("bench", "Fail"),
		callElem("bench", "Add", 3.0, 4.0),
	}
	responses := d.ExecuteBatch(context.Background(), batch, dispatch.RequestOptions{ContinueOnError: true})
	require.Len(t, responses, 3)

	require.Equal(t, 3.0, responses[0].Result)
	require.Equal(t, "relay stuck open", responses[1].Err.Message)
	require.Equal(t, 7.0, responses[2].Result)
	require.Equal(t, []string{"Add", "Fail", "Add"}, b.executed)
}

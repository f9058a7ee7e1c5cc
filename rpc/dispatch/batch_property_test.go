package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/patchbay-rpc/patchbay/registry"
	"github.com/patchbay-rpc/patchbay/rpc/dispatch"
)

// TestBatchResponseShape checks the executor's shape guarantees over
// randomized batches: one response per element in order, real outcomes up to
// and including the first failure, fixed padding after it, and nothing
// executed past the bail point.
func TestBatchResponseShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(0, 16).Draw(rt, "size").(int)
		failAt := rapid.IntRange(0, 31).Draw(rt, "failAt").(int)
		continueOnError := rapid.Bool().Draw(rt, "continueOnError").(bool)

		b := &bench{}
		reg := registry.New()
		require.NoError(rt, reg.Register("bench", b))
		d := dispatch.New(reg)

		batch := make([]interface{}, size)
		for i := range batch {
			if i == failAt {
				batch[i] = callElem("bench", "Fail")
			} else {
				batch[i] = callElem("bench", "Add", float64(i), 1.0)
			}
		}

		responses := d.ExecuteBatch(context.Background(), batch,
			dispatch.RequestOptions{ContinueOnError: continueOnError})
		require.Len(rt, responses, size)

		for i, resp := range responses {
			switch {
			case i == failAt:
				require.True(rt, resp.Failed(), "element %d", i)
				require.Equal(rt, "relay stuck open", resp.Err.Message, "element %d", i)
			case continueOnError || i < failAt:
				require.False(rt, resp.Failed(), "element %d: %v", i, resp.Err)
				require.Equal(rt, float64(i)+1, resp.Result, "element %d", i)
			default:
				require.True(rt, resp.Failed(), "element %d", i)
				require.Equal(rt, "Something went wrong in a preceding call.",
					resp.Err.Message, "element %d", i)
			}
		}

		wantExecuted := size
		if !continueOnError && failAt < size {
			wantExecuted = failAt + 1
		}
		require.Len(rt, b.executed, wantExecuted)
	})
}

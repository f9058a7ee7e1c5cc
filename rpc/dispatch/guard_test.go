package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/patchbay-rpc/patchbay/rpc/dispatch"
)

func TestGuardMutualExclusion(t *testing.T) {
	defer leaktest.Check(t)()

	g := dispatch.NewGuard()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				g.Acquire()
				counter++
				g.Release()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1600, counter)
}

func TestGuardYield(t *testing.T) {
	defer leaktest.Check(t)()

	g := dispatch.NewGuard()
	g.Acquire()

	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-entered
		// While the yielder is inside fn the guard must be up for grabs.
		g.Acquire()
		g.Release()
	}()

	g.Yield(func() {
		close(entered)
		<-done
	})

	// Back from Yield the guard is held again, so a new taker must block
	// until the explicit release.
	acquired := make(chan struct{})
	go func() {
		g.Acquire()
		close(acquired)
		g.Release()
	}()
	select {
	case <-acquired:
		t.Fatal("guard was free after Yield returned")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("guard was never released")
	}
}

func TestYieldHelper(t *testing.T) {
	// Without a guard on the context, fn runs inline.
	ran := false
	dispatch.Yield(context.Background(), func() { ran = true })
	require.True(t, ran)

	g := dispatch.NewGuard()
	ctx := dispatch.WithGuard(context.Background(), g)

	got, ok := dispatch.GuardFrom(ctx)
	require.True(t, ok)
	require.Same(t, g, got)

	_, ok = dispatch.GuardFrom(context.Background())
	require.False(t, ok)

	g.Acquire()
	ran = false
	dispatch.Yield(ctx, func() { ran = true })
	require.True(t, ran)
	g.Release()
}

// TestDispatchInstallsGuard proves a method can yield the request guard and
// that another holder really gets in during the window.
func TestDispatchInstallsGuard(t *testing.T) {
	defer leaktest.Check(t)()

	reg, _ := newBenchRegistry(t)
	require.NoError(t, reg.Register("gate", &gate{}))
	d := dispatch.New(reg)

	g := d.Guard()
	g.Acquire()
	defer g.Release()

	armed := make(chan struct{})
	sidecar := make(chan struct{})
	go func() {
		defer close(sidecar)
		close(armed)
		g.Acquire()
		g.Release()
	}()
	<-armed

	resp := d.Dispatch(context.Background(), map[string]interface{}{
		"object": "gate", "method": "Wait",
	})
	require.False(t, resp.Failed())

	select {
	case <-sidecar:
	case <-time.After(time.Second):
		t.Fatal("guard never became available during the yield")
	}
}

// gate yields the guard once and waits for contention to clear.
type gate struct {
	Open bool `json:"open"`
}

func (w *gate) Wait(ctx context.Context) error {
	dispatch.Yield(ctx, func() {
		time.Sleep(10 * time.Millisecond)
	})
	return nil
}

package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
)

// Guard is the process-wide exclusive lock that serializes access to
// registry objects. The transport acquires it for the full life of a
// request, from decoding the payload through every call in a batch to
// encoding the reply, so no object ever sees two invocations at once.
//
// The guard is not re-entrant. A method that wants concurrency while it
// waits on hardware or I/O gives the lock up voluntarily with Yield and
// gets it back before returning to its caller.
type Guard struct {
	mu   sync.Mutex
	wait metrics.Histogram
}

func NewGuard() *Guard {
	return &Guard{wait: discard.NewHistogram()}
}

// Acquire blocks until the guard is held.
func (g *Guard) Acquire() {
	start := time.Now()
	g.mu.Lock()
	g.wait.Observe(time.Since(start).Seconds())
}

// Release gives the guard up.
func (g *Guard) Release() { g.mu.Unlock() }

// Yield releases the guard, runs fn, and reacquires the guard before
// returning. The caller must hold the guard. Whatever fn does must not
// touch shared registry state; that is a cooperative contract the
// dispatcher cannot check.
func (g *Guard) Yield(fn func()) {
	g.mu.Unlock()
	defer g.mu.Lock()
	fn()
}

type guardKey struct{}

// WithGuard returns a context carrying g. The dispatcher installs the
// request's guard before every invocation so that methods can reach it.
func WithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, guardKey{}, g)
}

// GuardFrom extracts the guard installed on ctx, if any.
func GuardFrom(ctx context.Context) (*Guard, bool) {
	g, ok := ctx.Value(guardKey{}).(*Guard)
	return g, ok
}

// Yield runs fn with the request's guard released, reacquiring it before
// returning. Outside a dispatched invocation, where no guard rides on ctx,
// fn simply runs inline. This is the helper long-running methods call
// around their slow sections.
func Yield(ctx context.Context, fn func()) {
	if g, ok := GuardFrom(ctx); ok {
		g.Yield(fn)
		return
	}
	fn()
}

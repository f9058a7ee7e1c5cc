// Package demo ships the object registry a freshly initialized gateway
// serves, so `patchbayd start` answers real calls out of the box. The
// objects are small but cover the whole call surface: positional and
// keyword arguments, properties, warnings, failures and a guard-yielding
// sleep.
package demo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patchbay-rpc/patchbay/registry"
	"github.com/patchbay-rpc/patchbay/rpc/dispatch"
)

// repeatCap bounds Text.Repeat output so a demo call cannot balloon a reply.
const repeatCap = 1000

// Clock reports and spends time.
type Clock struct {
	// Format is the layout Now renders with, readable as a property.
	Format string `json:"format"`
}

type sleepParams struct {
	Seconds float64 `json:"seconds"`
}

// Now returns the current time in the clock's format.
func (c *Clock) Now(ctx context.Context) (string, error) {
	return time.Now().Format(c.Format), nil
}

// Sleep pauses for the given number of seconds and returns the seconds
// actually spent. The pause happens with the call guard released, so other
// requests keep flowing while it waits; a canceled request cuts it short.
func (c *Clock) Sleep(ctx context.Context, p sleepParams) (float64, error) {
	if p.Seconds < 0 {
		return 0, errors.New("cannot sleep a negative duration")
	}
	start := time.Now()
	dispatch.Yield(ctx, func() {
		timer := time.NewTimer(time.Duration(p.Seconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	})
	return time.Since(start).Seconds(), nil
}

// Counter accumulates a running total.
type Counter struct {
	Count float64 `json:"count"`
}

type deltaParams struct {
	Delta float64 `json:"delta"`
}

// Add adds delta to the total and returns the new value.
func (c *Counter) Add(ctx context.Context, p deltaParams) (float64, error) {
	c.Count += p.Delta
	return c.Count, nil
}

// Reset zeroes the total and returns the value it had.
func (c *Counter) Reset(ctx context.Context) (float64, error) {
	prev := c.Count
	c.Count = 0
	return prev, nil
}

// Text mangles strings.
type Text struct{}

type upperParams struct {
	S string `json:"s"`
}

type repeatParams struct {
	S string `json:"s"`
	N int    `json:"n"`
}

type failParams struct {
	Message string `json:"message"`
}

// Upper uppercases s.
func (*Text) Upper(ctx context.Context, p upperParams) (string, error) {
	return strings.ToUpper(p.S), nil
}

// Repeat concatenates n copies of s. Counts beyond the cap are clamped and
// reported as a warning on the response.
func (*Text) Repeat(ctx context.Context, p repeatParams) (string, error) {
	if p.N < 0 {
		return "", errors.New("repeat count cannot be negative")
	}
	if p.N > repeatCap {
		dispatch.Warnf(ctx, "repeat count %d clamped to %d", p.N, repeatCap)
		p.N = repeatCap
	}
	return strings.Repeat(p.S, p.N), nil
}

// Fail returns the given message as an error, for exercising failure paths
// end to end.
func (*Text) Fail(ctx context.Context, p failParams) error {
	return errors.New(p.Message)
}

// Registry returns a registry populated with the demo objects.
func Registry() (*registry.Registry, error) {
	reg := registry.New()

	if err := reg.Register("clock", &Clock{Format: time.RFC3339},
		registry.WithDoc("Wall clock with a cooperative sleep."),
		registry.WithMethodDoc("Now", "Now() returns the current time."),
		registry.WithMethodDoc("Sleep", "Sleep(seconds) pauses with the call guard released and returns the seconds spent."),
	); err != nil {
		return nil, err
	}

	if err := reg.Register("counter", &Counter{},
		registry.WithDoc("Accumulating counter."),
		registry.WithMethodDoc("Add", "Add(delta) adds delta to the total and returns it."),
		registry.WithMethodDoc("Reset", "Reset() zeroes the total and returns the previous value."),
	); err != nil {
		return nil, err
	}

	if err := reg.Register("text", &Text{},
		registry.WithDoc("String utilities."),
		registry.WithMethodDoc("Repeat", "Repeat(s, n) concatenates n copies of s."),
		registry.WithMethodDoc("Fail", "Fail(message) always fails with the given message."),
	); err != nil {
		return nil, err
	}

	return reg, nil
}

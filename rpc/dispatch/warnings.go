package dispatch

import (
	"context"
	"fmt"
)

// Recorder collects the warning diagnostics emitted during a single
// invocation. The dispatcher opens a fresh Recorder per call and drains it
// as soon as the call returns, so warnings never bleed between calls, not
// even between elements of one batch.
//
// A Recorder is not safe for concurrent use. Calls run serialized under the
// Guard, which is what makes the unsynchronized append sound.
type Recorder struct {
	warnings []string
}

// Warn records one warning.
func (r *Recorder) Warn(msg string) {
	if r == nil {
		return
	}
	r.warnings = append(r.warnings, msg)
}

// Warnf records one formatted warning.
func (r *Recorder) Warnf(format string, args ...interface{}) {
	r.Warn(fmt.Sprintf(format, args...))
}

// drain returns everything recorded so far and resets the recorder.
func (r *Recorder) drain() []string {
	ws := r.warnings
	r.warnings = nil
	return ws
}

type recorderKey struct{}

func withRecorder(ctx context.Context, rec *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

func recorderFrom(ctx context.Context) (*Recorder, bool) {
	rec, ok := ctx.Value(recorderKey{}).(*Recorder)
	return rec, ok
}

// Warn emits a warning diagnostic from inside a method invocation. The
// warning rides back to the client on this call's response envelope. Outside
// an invocation it is a no-op.
func Warn(ctx context.Context, msg string) {
	if rec, ok := recorderFrom(ctx); ok {
		rec.Warn(msg)
	}
}

// Warnf is Warn with formatting.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	Warn(ctx, fmt.Sprintf(format, args...))
}

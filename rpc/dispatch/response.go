package dispatch

import "fmt"

// Wire envelope keys.
const (
	fieldResult   = "result"
	fieldError    = "error"
	fieldMessage  = "message"
	fieldWarnings = "warnings"
)

// Response is the tagged outcome of one dispatched call. Exactly one
// variant is meaningful, discriminated by Err: nil means success. Warnings,
// when present, were captured during this call's invocation.
type Response struct {
	Result   interface{}
	Err      *CallError
	Warnings []string
}

// CallError is the failure half of a Response. Its message is surfaced
// verbatim on the wire.
type CallError struct {
	Message string
}

func (e *CallError) Error() string { return e.Message }

// Success returns a success Response carrying result.
func Success(result interface{}) *Response {
	return &Response{Result: result}
}

// Failure returns a failure Response with the given message.
func Failure(message string) *Response {
	return &Response{Err: &CallError{Message: message}}
}

func failuref(format string, args ...interface{}) *Response {
	return Failure(fmt.Sprintf(format, args...))
}

// Failed reports whether r is the failure variant. The check is on the tag,
// never on the result's content, so a success value that happens to contain
// an "error" key stays a success.
func (r *Response) Failed() bool { return r.Err != nil }

// Envelope renders r in wire form: {"result": value} or
// {"error": {"message": text}}, with "warnings" alongside when any were
// captured. A nil result still yields an explicit "result" key; clients
// distinguish the variants by key presence.
func (r *Response) Envelope() map[string]interface{} {
	env := make(map[string]interface{}, 2)
	if r.Err != nil {
		env[fieldError] = map[string]interface{}{fieldMessage: r.Err.Message}
	} else {
		env[fieldResult] = r.Result
	}
	if len(r.Warnings) > 0 {
		env[fieldWarnings] = r.Warnings
	}
	return env
}

// Package result provides a success/failure value for view loads.
//
// Every view turns a client call into a Result and then picks a policy at
// the call site: OrDefault swallows the failure, Message surfaces it.
package result

// Result holds either a value or the error that prevented producing it.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Of builds a Result from a (value, error) pair.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the result is a success.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Err returns the failure, or nil on success.
func (r Result[T]) Err() error {
	return r.err
}

// Get returns the value and error.
func (r Result[T]) Get() (T, error) {
	return r.value, r.err
}

// OrDefault returns the value, or def when the result is a failure.
func (r Result[T]) OrDefault(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}

// Message returns the failure text, or "" on success.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

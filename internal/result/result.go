// Package result carries a per-stage outcome: a value, or the reason the
// stage produced nothing.
package result

import "fmt"

type Result[T any] struct {
	value  T
	reason string
	failed bool
}

func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

func Failed[T any](reason string) Result[T] {
	if reason == "" {
		reason = "unspecified failure"
	}
	return Result[T]{reason: reason, failed: true}
}

func Failedf[T any](format string, args ...any) Result[T] {
	return Failed[T](fmt.Sprintf(format, args...))
}

// FromError maps a nil error to Ok(v) and anything else to Failed.
func FromError[T any](v T, err error) Result[T] {
	if err != nil {
		return Failed[T](err.Error())
	}
	return Ok(v)
}

func (r Result[T]) IsOk() bool { return !r.failed }

// Value returns the value and whether the result is Ok. A failed result
// yields the zero value.
func (r Result[T]) Value() (T, bool) { return r.value, !r.failed }

// ValueOr returns the value, or fallback for a failed result.
func (r Result[T]) ValueOr(fallback T) T {
	if r.failed {
		return fallback
	}
	return r.value
}

func (r Result[T]) Reason() string { return r.reason }

func (r Result[T]) String() string {
	if r.failed {
		return "failed: " + r.reason
	}
	return "ok"
}

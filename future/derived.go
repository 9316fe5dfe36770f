package future

import "context"

// Immediate returns a Future already settled with v, posted to ctx's
// owning Context dispatcher if one is attached (see WithPoster) so that
// any Link registered against it later still never runs inline under the
// caller. Useful for lifting plain values into combinator pipelines
// without spawning a task. Pass context.Background() when called with no
// Context in scope.
func Immediate[T any](ctx context.Context, v T) *Future[T] {
	f := NewFromContext[T](ctx)
	f.Set(v)
	return f
}

// ImmediateError returns a Future already settled with err, posted the
// same way Immediate posts a value.
func ImmediateError[T any](ctx context.Context, err ErrInfo) *Future[T] {
	f := NewFromContext[T](ctx)
	f.SetError(err)
	return f
}

// Transform returns a Future that settles once src does, applying fn to
// src's value. If src fails, the result fails with src's error unchanged;
// if fn itself returns an error, the result fails with that error instead.
// dst is posted to ctx's owning Context dispatcher, matching Immediate.
func Transform[S, T any](ctx context.Context, src *Future[S], fn func(S) (T, error)) *Future[T] {
	dst := NewFromContext[T](ctx)
	src.Link(func(s *Future[S]) {
		v, err := s.result()
		if err != nil {
			dst.SetError(errInfoOf(err))
			return
		}
		out, err := fn(v)
		if err != nil {
			dst.SetError(errInfoOf(err))
			return
		}
		dst.Set(out)
	})
	return dst
}

// Chain returns a Future that settles in two stages: once src settles, fn
// is called with its value to produce an inner Future, and the Chain's
// result settles with that inner Future's outcome once it settles. Links
// registered on the Chain's result stay on it and fire after that second
// stage, so chain(...).Ready() stays false until the inner Future itself
// settles.
// dst is posted to ctx's owning Context dispatcher, matching Immediate.
func Chain[S, T any](ctx context.Context, src *Future[S], fn func(S) (*Future[T], error)) *Future[T] {
	dst := NewFromContext[T](ctx)
	src.Link(func(s *Future[S]) {
		v, err := s.result()
		if err != nil {
			dst.SetError(errInfoOf(err))
			return
		}
		inner, err := fn(v)
		if err != nil {
			dst.SetError(errInfoOf(err))
			return
		}
		inner.Link(func(i *Future[T]) {
			out, err := i.result()
			if err != nil {
				dst.SetError(errInfoOf(err))
				return
			}
			dst.Set(out)
		})
	})
	return dst
}

// errInfoOf normalizes any error observed from a settled Future's result()
// into an ErrInfo, preserving it unchanged if it already is one (so a
// shared batch-failure ErrInfo propagates through Transform/Chain without
// acquiring a second, redundant trace).
func errInfoOf(err error) ErrInfo {
	if ei, ok := err.(ErrInfo); ok {
		return ei
	}
	return NewErrInfo(KindUser, err)
}

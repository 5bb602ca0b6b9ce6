// Package source provides the remote data-source plumbing the entity layer
// fetches through: a minimal fetch function type with composable
// middlewares, a fallback combinator that tries an ordered list of fetch
// strategies, and a small REST client for the hosted backend.
package source

import "context"

// Func is the minimal unit of remote work: an asynchronous fetch that either
// resolves to a value or fails.
type Func[T any] func(ctx context.Context) (T, error)

// Middleware transforms a Func, allowing pre/post behavior composition
// (tracing, logging, retries) around a fetch.
type Middleware[T any] func(Func[T]) Func[T]

// Chain composes middlewares from left to right, i.e. Chain(A, B)(f) => A(B(f)).
func Chain[T any](mw ...Middleware[T]) Middleware[T] {
	return func(next Func[T]) Func[T] {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// Wrap applies the middleware chain to a fetch and returns the wrapped fetch.
func Wrap[T any](fn Func[T], mw ...Middleware[T]) Func[T] {
	if len(mw) == 0 {
		return fn
	}
	return Chain(mw...)(fn)
}

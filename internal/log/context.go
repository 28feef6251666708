package log

import "context"

type ctxKey struct{}

// WithContext returns a new context that carries the given Logger
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Lookup returns the Logger stored in ctx, if any.
func Lookup(ctx context.Context) (Logger, bool) {
	l, ok := ctx.Value(ctxKey{}).(Logger)
	return l, ok && l != nil
}

// FromContext returns the Logger stored in ctx, or Nop() if none is present
func FromContext(ctx context.Context) Logger {
	return FromContextOr(ctx, nil)
}

// FromContextOr returns the Logger stored in ctx, or fallback when ctx
// carries none. A nil fallback yields Nop().
func FromContextOr(ctx context.Context, fallback Logger) Logger {
	if l, ok := Lookup(ctx); ok {
		return l
	}
	if fallback == nil {
		return Nop()
	}
	return fallback
}

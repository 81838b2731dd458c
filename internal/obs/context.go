package obs

import "context"

type ctxKey int

const routeKey ctxKey = iota

// WithRoutePattern records the chi route pattern a request matched, so logs,
// metrics and spans share one low-cardinality route label.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routeKey, pattern)
}

// RoutePatternFromContext returns the recorded pattern, or "".
func RoutePatternFromContext(ctx context.Context) string {
	pattern, _ := ctx.Value(routeKey).(string)
	return pattern
}

package trace

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// HeaderName is the HTTP header carrying the trace id.
const HeaderName = "X-Trace-ID"

// requestHeaderName is accepted as a fallback when clients only send a request id.
const requestHeaderName = "X-Request-ID"

// GenerateTraceID 生成一个新的 trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(contextKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, traceID)
}

// FromHeaders picks the trace id from X-Trace-ID, then X-Request-ID, and
// generates one when neither is set.
func FromHeaders(get func(string) string) string {
	if v := get(HeaderName); v != "" {
		return v
	}
	if v := get(requestHeaderName); v != "" {
		return v
	}
	return GenerateTraceID()
}

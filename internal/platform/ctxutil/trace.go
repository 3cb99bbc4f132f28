// Package ctxutil carries request-scoped identifiers through a context.
package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies one API request in logs and spans. UserID is the
// pipeline user the request concerns, when the caller named one.
type TraceData struct {
	TraceID   string
	RequestID string
	UserID    string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields returns the non-empty identifiers as logger key/value pairs.
func (td *TraceData) LogFields() []interface{} {
	if td == nil {
		return nil
	}
	out := make([]interface{}, 0, 6)
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if td.UserID != "" {
		out = append(out, "user_id", td.UserID)
	}
	return out
}

// LogFields is GetTraceData(ctx).LogFields().
func LogFields(ctx context.Context) []interface{} {
	return GetTraceData(ctx).LogFields()
}

package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries correlation identifiers through a task's execution so
// logs across Stage Driver invocations and board calls can be joined.
type TraceData struct {
	TraceID string
	TaskID  string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

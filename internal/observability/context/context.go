package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
	jobKey
)

type actorValue struct {
	role string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActor records the authenticated actor for log correlation only.
func WithActor(ctx context.Context, role, id string) context.Context {
	return context.WithValue(ctx, actorKey, actorValue{role: role, id: id})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, ok := ctx.Value(actorKey).(actorValue)
	if !ok {
		return "", ""
	}
	return v.role, v.id
}

// WithJob tags background work with the scheduler job name and run id.
func WithJob(ctx context.Context, job, runID string) context.Context {
	return context.WithValue(ctx, jobKey, [2]string{job, runID})
}

func JobFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, ok := ctx.Value(jobKey).([2]string)
	if !ok {
		return "", ""
	}
	return v[0], v[1]
}

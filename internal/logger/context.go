package logger

import "context"

type contextKey struct{}

var replicaContextKey = contextKey{}

// ReplicaContext is the request-scoped data attached to a context as
// a message flows through the replica core: which replica is handling
// it, and a correlation id for tying a Request's log lines and trace
// spans together (see internal/telemetry).
type ReplicaContext struct {
	ReplicaID   uint64
	RequestID   string
	View        uint64
	Status      string
}

// WithReplicaContext returns a new context carrying rc.
func WithReplicaContext(ctx context.Context, rc *ReplicaContext) context.Context {
	return context.WithValue(ctx, replicaContextKey, rc)
}

// ReplicaContextFrom retrieves the ReplicaContext from ctx, or nil if
// none is present.
func ReplicaContextFrom(ctx context.Context) *ReplicaContext {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(replicaContextKey).(*ReplicaContext)
	return rc
}

// Clone returns a copy of rc so callers can adjust one field (e.g. the
// view after a view change) without mutating a context another
// goroutine might also be holding a reference to.
func (rc *ReplicaContext) Clone() *ReplicaContext {
	if rc == nil {
		return nil
	}
	clone := *rc
	return &clone
}

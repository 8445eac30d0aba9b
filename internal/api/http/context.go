package http

import (
	"context"

	"booking-reconciler/internal/domain"
)

// Caller identifies who is invoking an endpoint once auth has passed.
type Caller struct {
	ActorID string
	Cron    bool
}

// TriggeredBy is the provenance recorded on runs this caller starts.
func (c Caller) TriggeredBy() string {
	if c.Cron {
		return domain.TriggeredByCron
	}
	return c.ActorID
}

type callerKey struct{}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

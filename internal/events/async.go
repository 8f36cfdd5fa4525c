package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dsodesk/internal/logger"
)

// publishTimeout bounds a single async publish.
const publishTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before closing publishers and
// OTel providers, so in-flight async publishes can finish. Must be >= publishTimeout.
const ShutdownDrainDuration = publishTimeout

// PublishAsync runs Publish in a goroutine so the request is not blocked. Errors are logged.
// The goroutine detaches from request cancellation but keeps the request logger.
func PublishAsync(pub Publisher, ctx context.Context, ev Event) {
	if pub == nil {
		return
	}
	log := logger.FromContext(ctx)
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := pub.Publish(pubCtx, ev); err != nil {
			log.Warn("events: async publish failed",
				zap.String("event_type", string(ev.Type)), zap.String("org_id", ev.OrgID), zap.Error(err))
		}
	}()
}

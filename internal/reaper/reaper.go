package reaper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/acme/dial-queue/internal/app"
)

// Reaper releases entries whose claim has outlived the configured timeout
// back to the queue so an abandoned claim never strands a contact.
type Reaper struct {
	container *app.Container
}

// New constructs a reaper.
func New(container *app.Container) *Reaper {
	return &Reaper{container: container}
}

// Run executes the release loop until cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	cfg := r.container.Config
	interval := cfg.Queue.ReapTick
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.tick(ctx); err != nil && ctx.Err() == nil {
			r.container.Logger.Error("reaper tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reaper) tick(ctx context.Context) error {
	timeout := r.container.Config.Queue.ClaimTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	tracer := otel.Tracer("dialqueue.reaper")
	sctx, span := tracer.Start(ctx, "reaper.tick")
	defer span.End()

	released, err := r.container.Services().DialQueue.ReleaseStale(sctx, timeout)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("entries.released", len(released)))

	for _, entry := range released {
		r.container.Logger.Warn("reaper: claim timed out",
			zap.String("entry_id", entry.EntryID.String()),
			zap.String("campaign_id", entry.CampaignID.String()),
			zap.String("agent_id", entry.AgentID.String()))
	}
	return nil
}

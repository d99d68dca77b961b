package refiller

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/dial-queue/internal/app"
	"github.com/acme/dial-queue/internal/domain"
)

// Refiller keeps active campaign queues topped up to the pacing
// recommendation, respecting each campaign's calling-hour windows.
type Refiller struct {
	container *app.Container
}

// New constructs a refiller.
func New(container *app.Container) *Refiller {
	return &Refiller{container: container}
}

// Run executes the refill loop until cancelled.
func (r *Refiller) Run(ctx context.Context) error {
	cfg := r.container.Config
	interval := cfg.Queue.RefillTick
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.tick(ctx); err != nil && ctx.Err() == nil {
			r.container.Logger.Error("refiller tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Refiller) tick(ctx context.Context) error {
	repos := r.container.Repositories()
	services := r.container.Services()
	logger := r.container.Logger

	tracer := otel.Tracer("dialqueue.refiller")
	sctx, span := tracer.Start(ctx, "refiller.tick")
	defer span.End()

	nowUTC := time.Now().UTC()
	campaigns, err := repos.Campaigns.ListActive(sctx, r.campaignFetchLimit())
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("campaign.count", len(campaigns)))

	for _, campaign := range campaigns {
		// Preview campaigns materialize only on explicit agent request.
		if campaign.DialMethod == domain.DialMethodPreview {
			continue
		}

		cctx, cspan := tracer.Start(sctx, "refiller.campaign", trace.WithAttributes(
			attribute.String("campaign.id", campaign.ID.String()),
			attribute.String("campaign.dial_method", string(campaign.DialMethod)),
		))

		windows, err := repos.Campaigns.ListCallingHours(cctx, campaign.ID)
		if err != nil {
			cspan.RecordError(err)
			logger.Error("refiller: load calling hours", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}
		campaign.CallingHours = windows

		if !withinCallingHours(nowUTC, campaign) {
			logger.Debug("refiller: campaign outside calling hours", zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}

		recommendation, err := services.Pacing.RecommendFor(cctx, campaign)
		if err != nil {
			cspan.RecordError(err)
			logger.Error("refiller: pacing", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}

		stats, err := repos.Queue.Stats(cctx, campaign.ID)
		if err != nil {
			cspan.RecordError(err)
			logger.Error("refiller: queue stats", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}

		shortfall := refillCount(recommendation.RecommendedDepth, stats.QueuedCount, r.container.Config.Queue.MaxRefillBatch)
		cspan.SetAttributes(
			attribute.Int("pacing.recommended_depth", recommendation.RecommendedDepth),
			attribute.Int64("queue.queued", stats.QueuedCount),
			attribute.Int("refill.shortfall", shortfall),
		)
		if shortfall == 0 {
			cspan.End()
			continue
		}

		created, err := repos.Queue.Materialize(cctx, campaign.ID, shortfall, time.Now().UTC())
		if err != nil {
			cspan.RecordError(err)
			logger.Error("refiller: materialize", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}
		if created > 0 {
			logger.Info("refiller: queue topped up",
				zap.String("campaign_id", campaign.ID.String()),
				zap.Int("created", created),
				zap.Int("shortfall", shortfall),
				zap.Int("available_agents", recommendation.AvailableAgents))
		}
		cspan.End()
	}

	return nil
}

func (r *Refiller) campaignFetchLimit() int {
	limit := r.container.Config.Queue.MaxRefillBatch
	if limit <= 0 {
		limit = 100
	}
	return limit
}

// refillCount caps the shortfall at the per-tick batch limit. The pool may
// hold fewer eligible contacts; materialize simply creates fewer rows then.
func refillCount(recommendedDepth int, queued int64, maxBatch int) int {
	shortfall := recommendedDepth - int(queued)
	if shortfall <= 0 {
		return 0
	}
	if maxBatch > 0 && shortfall > maxBatch {
		return maxBatch
	}
	return shortfall
}

func withinCallingHours(nowUTC time.Time, campaign *domain.Campaign) bool {
	if len(campaign.CallingHours) == 0 {
		return true
	}

	loc, err := time.LoadLocation(campaign.TimeZone)
	if err != nil {
		return true
	}

	local := nowUTC.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	weekday := local.Weekday()

	for _, window := range campaign.CallingHours {
		start := window.Start.Hour()*60 + window.Start.Minute()
		end := window.End.Hour()*60 + window.End.Minute()

		if end <= start {
			// window spans midnight
			nextDay := (int(window.DayOfWeek) + 1) % 7
			if window.DayOfWeek == weekday && minuteOfDay >= start {
				return true
			}
			if time.Weekday(nextDay) == weekday && minuteOfDay < end {
				return true
			}
			continue
		}

		if window.DayOfWeek != weekday {
			continue
		}

		if minuteOfDay >= start && minuteOfDay < end {
			return true
		}
	}

	return false
}

package audit

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/dial-queue/internal/app"
	"github.com/acme/dial-queue/internal/events"
	"github.com/acme/dial-queue/internal/repository"
)

// Worker consumes outcome events and appends them to the disposition audit
// store. The audit trail is eventually consistent with the operational store;
// the Kafka offset is the only cursor.
type Worker struct {
	container *app.Container
}

// New creates a new audit worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run processes outcome events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	reader := w.container.Kafka.NewReader(cfg.Kafka.OutcomeTopic, cfg.Kafka.AuditConsumerGroupID)
	defer reader.Close()

	store := w.container.Repositories().Audit
	logger := w.container.Logger

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("audit worker: fetch", zap.Error(err))
			continue
		}

		var event events.OutcomeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Malformed payloads are committed, not retried forever.
			logger.Error("audit worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		tracer := otel.Tracer("dialqueue.auditworker")
		sctx, span := tracer.Start(ctx, "disposition.audit", trace.WithAttributes(
			attribute.String("disposition.id", event.DispositionID.String()),
			attribute.String("campaign.id", event.CampaignID.String()),
			attribute.String("outcome", event.Outcome),
		))

		record := repository.AuditRecord{
			DispositionID: event.DispositionID,
			EntryID:       event.EntryID,
			CampaignID:    event.CampaignID,
			ContactID:     event.ContactID,
			AgentID:       event.AgentID,
			Outcome:       event.Outcome,
			RawOutcome:    event.RawOutcome,
			Notes:         event.Notes,
			CallbackAt:    event.CallbackAt,
			HandleTimeMs:  event.HandleTimeMs,
			CreatedAt:     event.OccurredAt,
		}
		if err := store.Append(sctx, record); err != nil {
			// Leave the offset uncommitted so the append is retried.
			span.RecordError(err)
			span.End()
			logger.Error("audit worker: append", zap.Error(err), zap.String("disposition_id", event.DispositionID.String()))
			continue
		}

		if err := reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			logger.Error("audit worker: commit", zap.Error(err))
		}
		span.End()
	}
}

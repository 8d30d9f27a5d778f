// Package persist forwards extracted emergency records to storage.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/models"
	"ai-voice-bridge-service/internal/observability/logging"
	"ai-voice-bridge-service/internal/observability/metrics"
	"ai-voice-bridge-service/internal/service/extract"
)

// Inserter is the storage collaborator.
type Inserter interface {
	Insert(ctx context.Context, row map[string]any) error
}

// EventPublisher receives an event for every stored record.
type EventPublisher interface {
	PublishEmergency(ctx context.Context, key string, event any) error
}

// Origin identifies the call a record came from.
type Origin struct {
	SessionID string
	StreamSID string
}

// Persister inserts records, degrading to a reduced row and then to a log
// entry. It never returns an error to the session.
type Persister struct {
	store     Inserter
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Persister. publisher may be nil.
func New(store Inserter, publisher EventPublisher) *Persister {
	return &Persister{
		store:     store,
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("persist"),
		now:       time.Now,
	}
}

// Outcome reports what Persist did.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeFull    Outcome = "full"
	OutcomeReduced Outcome = "reduced"
	OutcomeDropped Outcome = "dropped"
)

// Persist stores rec. Records without a location or emergency are skipped.
// A failed insert is retried once without model_response; a second failure
// is logged and dropped.
func (p *Persister) Persist(ctx context.Context, origin Origin, rec *extract.Record) Outcome {
	if rec == nil || !rec.Persistable() {
		p.metrics.RecordPersist(string(OutcomeSkipped))
		return OutcomeSkipped
	}

	logger := p.logger.With().
		Str("sessionId", origin.SessionID).
		Str("streamSid", origin.StreamSID).
		Logger()

	outcome := OutcomeFull
	firstErr := p.store.Insert(ctx, rec.Row(true))
	if firstErr != nil {
		logger.Warn().Err(firstErr).Msg("Insert failed, retrying without model_response")
		outcome = OutcomeReduced
		if err := p.store.Insert(ctx, rec.Row(false)); err != nil {
			err = fmt.Errorf("%w: %w", faults.ErrPersistFailure, errors.Join(firstErr, err))
			logger.Error().
				Err(err).
				Str("kind", faults.Kind(err)).
				Msg("Emergency record dropped")
			p.metrics.RecordPersist(string(OutcomeDropped))
			return OutcomeDropped
		}
	}
	p.metrics.RecordPersist(string(outcome))

	logger.Info().
		Str("outcome", string(outcome)).
		Bool("hasLocation", rec.Location != nil).
		Bool("hasEmergency", rec.Emergency != nil).
		Msg("Emergency record stored")

	if p.publisher != nil {
		event := models.EmergencyRecorded{
			EventType: models.EventEmergencyRecorded,
			SessionID: origin.SessionID,
			StreamSID: origin.StreamSID,
			CallerID:  rec.CallerID,
			Timestamp: p.now().UnixMilli(),
			Location:  rec.Location,
			Emergency: rec.Emergency,
			Output:    rec.Output,
			Reduced:   outcome == OutcomeReduced,
		}
		if err := p.publisher.PublishEmergency(ctx, origin.SessionID, event); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish emergency event")
		}
	}
	return outcome
}

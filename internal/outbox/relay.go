package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Publisher delivers an envelope to the external bus. Implementations live
// under internal/infrastructure; the relay stays broker-agnostic.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type RelayConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	Lease          time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Interval:       2 * time.Second,
		BatchSize:      50,
		MaxAttempts:    8,
		BaseRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay:  5 * time.Minute,
		Lease:          30 * time.Second,
	}
}

// Relay drains the outbox: claim a batch, publish each envelope, record the
// outcome. Claims happen in a short transaction; publishing never does. A
// row that keeps failing backs off exponentially and is dead-lettered after
// MaxAttempts, where it waits for an operator requeue.
type Relay struct {
	storage   Storage
	publisher Publisher
	cfg       RelayConfig
	logger    *logrus.Logger
}

func NewRelay(storage Storage, publisher Publisher, cfg RelayConfig, logger *logrus.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Relay{storage: storage, publisher: publisher, cfg: cfg, logger: logger}
}

// Run polls until the context is canceled.
func (r *Relay) Run(ctx context.Context) {
	r.logger.WithField("interval", r.cfg.Interval).Info("[Relay] starting outbox relay")
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := r.Tick(ctx); n > 0 {
				r.logger.WithField("published", n).Debug("[Relay] batch complete")
			}
		case <-ctx.Done():
			r.logger.Info("[Relay] stopping outbox relay")
			return
		}
	}
}

// Tick claims and processes one batch, returning how many envelopes were
// published. Exposed so tests can drive the relay without the ticker.
func (r *Relay) Tick(ctx context.Context) int {
	events, err := r.storage.ClaimBatch(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		r.logger.WithError(err).Error("[Relay] failed to claim outbox batch")
		return 0
	}
	published := 0
	for _, e := range events {
		if err := r.publisher.Publish(ctx, e.Envelope()); err != nil {
			r.markFailed(ctx, e, err)
			continue
		}
		if err := r.storage.MarkPublished(ctx, e.ID); err != nil {
			// The publish went out; the row stays claimed until the lease
			// expires and will be re-published. Consumers de-duplicate by
			// event_id, so this only costs a duplicate delivery.
			r.logger.WithError(err).WithField("event_id", e.ID).Error("[Relay] failed to mark event published")
			continue
		}
		published++
	}
	return published
}

func (r *Relay) markFailed(ctx context.Context, e *Event, cause error) {
	attempts := e.Attempts + 1
	dead := attempts >= r.cfg.MaxAttempts
	next := time.Now().Add(Backoff(r.cfg.BaseRetryDelay, r.cfg.MaxRetryDelay, attempts))

	log := r.logger.WithError(cause).WithFields(logrus.Fields{
		"event_id":   e.ID,
		"event_type": e.EventType,
		"attempts":   attempts,
	})
	if dead {
		log.Error("[Relay] event dead-lettered after max attempts")
	} else {
		log.WithField("next_attempt_at", next).Warn("[Relay] publish failed, will retry")
	}

	if err := r.storage.MarkFailed(ctx, e.ID, attempts, cause.Error(), next, dead); err != nil {
		r.logger.WithError(err).WithField("event_id", e.ID).Error("[Relay] failed to record publish failure")
	}
}

// Requeue returns a dead-lettered event to rotation. Operator path.
func (r *Relay) Requeue(ctx context.Context, id uuid.UUID) error {
	return r.storage.RequeueDead(ctx, id)
}

package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "fulfillment:seen:"

// Dedupe tracks processed event ids with SETNX so redeliveries from the
// at-least-once relay are dropped across notifier instances. Keys expire
// after the TTL; an event replayed later than that counts as new, which at
// worst re-sends a notification.
type Dedupe struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupe(client *redis.Client, ttl time.Duration) *Dedupe {
	return &Dedupe{client: client, ttl: ttl}
}

// FirstSeen atomically claims an event id, returning true when this
// delivery is the first within the TTL window.
func (d *Dedupe) FirstSeen(ctx context.Context, eventID uuid.UUID) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupeKeyPrefix+eventID.String(), 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "job-comb:runs"

type event struct {
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	HasNew   bool      `json:"has_new"`
	NewCount int       `json:"new_count"`
	Total    int       `json:"total"`
	SentAt   time.Time `json:"sent_at"`
}

// RedisDeliverer publishes run messages on a Redis pub/sub channel.
type RedisDeliverer struct {
	rdb     *redis.Client
	channel string
	now     func() time.Time
}

func NewRedisDeliverer(rdb *redis.Client, channel string) *RedisDeliverer {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisDeliverer{rdb: rdb, channel: channel, now: time.Now}
}

func (d *RedisDeliverer) Deliver(ctx context.Context, msg jobs.Message) error {
	payload, err := json.Marshal(event{
		Type:     "EVENT_RUN_COMPLETED",
		Title:    msg.Title,
		Body:     msg.Body,
		HasNew:   msg.HasNew,
		NewCount: msg.NewCount,
		Total:    msg.Total,
		SentAt:   d.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	if err := d.rdb.Publish(ctx, d.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", d.channel, err)
	}

	return nil
}

package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/job-comb/app/jobs"
)

// Deliverer sends a run message somewhere a person will see it.
type Deliverer interface {
	Deliver(ctx context.Context, msg jobs.Message) error
}

type LogDeliverer struct{}

func NewLogDeliverer() *LogDeliverer {
	return &LogDeliverer{}
}

func (d *LogDeliverer) Deliver(ctx context.Context, msg jobs.Message) error {
	slog.Info("Notification",
		"title", msg.Title,
		"new", msg.NewCount,
		"total", msg.Total)
	slog.Info(msg.Body)
	return nil
}

// Multi fans a message out to several deliverers. Every deliverer is tried
// even when an earlier one fails.
type Multi []Deliverer

func (m Multi) Deliver(ctx context.Context, msg jobs.Message) error {
	var errs []error
	for _, d := range m {
		if err := d.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

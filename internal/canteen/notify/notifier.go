// Package notify delivers committed admissions to dashboards and other
// listeners. Delivery happens strictly after commit, off the admission path,
// and can never change an admission outcome.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

// Notifier is told about each committed event. Returning an error makes the
// dispatcher retry with backoff.
type Notifier interface {
	Notify(ctx context.Context, ev types.CommittedEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev types.CommittedEvent) error

func (f NotifierFunc) Notify(ctx context.Context, ev types.CommittedEvent) error { return f(ctx, ev) }

// LogNotifier writes each event to the log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, ev types.CommittedEvent) error {
	n.log.Info("admission committed",
		zap.Int64("event_id", ev.EventID),
		zap.String("client_request_id", ev.ClientRequestID),
		zap.Int64("tenant_id", ev.TenantID),
		zap.String("day_key", ev.DayKey),
		zap.String("ticket", ev.Ticket),
		zap.Int("queue_number", ev.QueueNumber),
		zap.String("reason", ev.Reason),
	)
	return nil
}

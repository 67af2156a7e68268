package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

type DispatcherConfig struct {
	// Buffer is the queue length; Publish drops events once it is full.
	Buffer int

	// MaxRetries per sink per event. 0 means deliver once.
	MaxRetries uint64

	// InitialInterval is the first retry delay. Defaults to 200ms.
	InitialInterval time.Duration

	// OnDrop and OnFail are optional metric hooks.
	OnDrop func()
	OnFail func()
}

// Dispatcher fans committed events out to its sinks on one background
// goroutine. Publish never blocks the caller.
type Dispatcher struct {
	cfg   DispatcherConfig
	sinks []Notifier
	log   *zap.Logger

	queue  chan types.CommittedEvent
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(cfg DispatcherConfig, log *zap.Logger, sinks ...Notifier) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		sinks:  sinks,
		log:    log.Named("notify"),
		queue:  make(chan types.CommittedEvent, cfg.Buffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go d.loop()
	return d
}

// Publish queues ev for delivery. It reports false if ev was dropped because
// the queue is full or the dispatcher is closed.
func (d *Dispatcher) Publish(ev types.CommittedEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.closed {
		select {
		case d.queue <- ev:
			return true
		default:
		}
	}

	d.log.Warn("notification dropped",
		zap.Int64("event_id", ev.EventID),
		zap.String("client_request_id", ev.ClientRequestID),
		zap.Bool("closed", d.closed),
	)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop()
	}
	return false
}

// Close stops accepting events and waits for the queue to drain. If ctx
// ends first, in-flight retries are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	defer d.cancel()

	for ev := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, ev)
		}
	}
}

func (d *Dispatcher) deliver(s Notifier, ev types.CommittedEvent) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.InitialInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, d.cfg.MaxRetries), d.ctx)

	err := backoff.RetryNotify(func() error {
		return s.Notify(d.ctx, ev)
	}, b, func(err error, wait time.Duration) {
		d.log.Debug("notification retry", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		d.log.Warn("notification failed",
			zap.Int64("event_id", ev.EventID),
			zap.String("client_request_id", ev.ClientRequestID),
			zap.Error(err),
		)
		if d.cfg.OnFail != nil {
			d.cfg.OnFail()
		}
	}
}

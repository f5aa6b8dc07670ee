package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/models"
)

// dispatchStore is the slice of the notification repository the dispatcher
// needs
type dispatchStore interface {
	ListPending(ctx context.Context, limit int) ([]*models.Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, deliveryErr string) error
}

// Sink delivers a single notification to the external sink
type Sink interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// Dispatcher drains the notification outbox in the background. Each row is
// delivered once and marked SENT or FAILED; the outbox uniqueness key has
// already collapsed duplicate transitions, so delivery here is exactly-once
// per logical transition per recipient.
type Dispatcher struct {
	store  dispatchStore
	sink   Sink
	logger *zap.Logger

	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewDispatcher creates a new outbox dispatcher
func NewDispatcher(store dispatchStore, sink Sink, interval time.Duration, batchSize int, logger *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		store:     store,
		sink:      sink,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start starts the dispatch loop
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("notification dispatcher is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.isRunning = true

	d.logger.Info("Notification dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize))

	go d.loop()
	return nil
}

// Stop stops the dispatch loop and waits for the in-flight batch
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return
	}
	d.isRunning = false
	d.cancel()
	done := d.done
	d.mu.Unlock()

	<-done
	d.logger.Info("Notification dispatcher stopped")
}

// Name returns the worker name for identification
func (d *Dispatcher) Name() string {
	return "NotificationDispatcher"
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Drain immediately on start
	d.dispatchPending()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.dispatchPending()
		}
	}
}

// dispatchPending delivers one batch of pending outbox rows
func (d *Dispatcher) dispatchPending() {
	ctx, cancel := context.WithTimeout(d.ctx, d.interval)
	defer cancel()

	pending, err := d.store.ListPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to list pending notifications", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	sent := 0
	failed := 0
	for _, n := range pending {
		if ctx.Err() != nil {
			return
		}

		if err := d.sink.Deliver(ctx, n); err != nil {
			d.logger.Warn("Notification delivery failed",
				zap.String("id", n.ID),
				zap.String("user_id", n.UserID),
				zap.Error(err))
			if markErr := d.store.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
				d.logger.Error("Failed to mark notification failed", zap.String("id", n.ID), zap.Error(markErr))
			}
			failed++
			continue
		}

		if err := d.store.MarkSent(ctx, n.ID); err != nil {
			d.logger.Error("Failed to mark notification sent", zap.String("id", n.ID), zap.Error(err))
			continue
		}
		sent++
	}

	d.logger.Info("Notification dispatch completed",
		zap.Int("sent", sent),
		zap.Int("failed", failed))
}

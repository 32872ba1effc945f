package expiry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cinebook/booking/internal/adapters/rabbit"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Action is the idempotent expiry receiver; duplicate deliveries for
// the same order are safe because only the first one observes PENDING.
type Action interface {
	ExpireOrder(ctx context.Context, orderID int64) error
}

// Store provides the sweep backstop query.
type Store interface {
	OverduePendingOrders(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// Consumer yields due expiry deliveries from the delay queue.
type Consumer interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

const (
	maxRetries = 3
	sweepBatch = 100
)

// Worker drains the due-expiry queue and periodically sweeps the DB for
// overdue PENDING orders the queue missed (lost deliveries, scheduling
// failures). Both paths call the same idempotent action.
type Worker struct {
	consumer      Consumer
	store         Store
	action        Action
	logger        observability.Logger
	sweepInterval time.Duration
	backoffUnit   time.Duration
}

func NewWorker(consumer Consumer, store Store, action Action, logger observability.Logger, sweepInterval time.Duration) *Worker {
	return &Worker{
		consumer:      consumer,
		store:         store,
		action:        action,
		logger:        logger,
		sweepInterval: sweepInterval,
		backoffUnit:   time.Second,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.consumeLoop(ctx) })
	g.Go(func() error { return w.sweepLoop(ctx) })
	return g.Wait()
}

func (w *Worker) consumeLoop(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("expiry delivery channel closed")
			}
			w.handleDelivery(ctx, d)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var msg rabbit.ExpiryMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		w.logger.Error("dropping malformed expiry message", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.expireWithRetry(ctx, msg.OrderID); err != nil {
		w.logger.WithField("order_id", msg.OrderID).Error("failed to expire order, requeueing", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (w *Worker) expireWithRetry(ctx context.Context, orderID int64) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = w.action.ExpireOrder(ctx, orderID); err == nil {
			return nil
		}
		backoff := time.Duration(1<<i) * w.backoffUnit
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return errors.Wrapf(err, "failed after %d retries", maxRetries)
}

func (w *Worker) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			w.Sweep(ctx, now)
		}
	}
}

// Sweep expires every overdue PENDING order it finds. It trusts the
// action's idempotency guard, so overlapping with queue deliveries is
// harmless.
func (w *Worker) Sweep(ctx context.Context, now time.Time) {
	ids, err := w.store.OverduePendingOrders(ctx, now, sweepBatch)
	if err != nil {
		w.logger.Error("expiry sweep query failed", err)
		return
	}
	observability.ExpirySweepBacklog.Set(float64(len(ids)))
	for _, id := range ids {
		if err := w.action.ExpireOrder(ctx, id); err != nil {
			w.logger.WithField("order_id", id).Error("sweep failed to expire order", err)
		}
	}
}

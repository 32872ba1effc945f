package rabbit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// expiryWaitQueue parks messages until their per-message TTL runs
	// out; dead-lettering then moves them to the due queue. No poller
	// is involved.
	expiryWaitQueue = "order.expiry.wait"
	ExpiryDueQueue  = "order.expiry.due"
)

// ExpiryMessage is the delayed-job payload for a single order.
type ExpiryMessage struct {
	OrderID  int64     `json:"order_id"`
	Deadline time.Time `json:"deadline"`
}

// DelayQueue schedules deferred expiry deliveries. Delivery is
// at-least-once; the receiver must be idempotent.
type DelayQueue struct {
	ch *amqp.Channel
}

func NewDelayQueue(conn *amqp.Connection) (*DelayQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(ExpiryDueQueue, true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(expiryWaitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": ExpiryDueQueue,
	})
	if err != nil {
		return nil, err
	}
	return &DelayQueue{ch: ch}, nil
}

// Schedule enqueues an expiry delivery that fires no earlier than
// deadline. A deadline already in the past is delivered immediately.
func (q *DelayQueue) Schedule(ctx context.Context, orderID int64, deadline time.Time) error {
	body, err := json.Marshal(ExpiryMessage{OrderID: orderID, Deadline: deadline})
	if err != nil {
		return err
	}
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	return q.ch.PublishWithContext(ctx, "", expiryWaitQueue, false, false, amqp.Publishing{
		MessageId:    uuid.New().String(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Body:         body,
	})
}

package booking

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cinebook/booking/internal/adapters/crdb"
	"github.com/cinebook/booking/internal/domain"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// Transition drives the order status machine. The status write and all
// side effects (item statuses, per-showtime capacity release, paid_at)
// happen in one transaction; a failure rolls back the whole edge.
//
// The order row is locked first, so a user cancellation racing the
// expiry worker serializes: only one of them observes PENDING.
func (s *Service) Transition(ctx context.Context, orderID int64, target domain.OrderStatus) (*domain.Order, error) {
	var (
		updated  *domain.Order
		from     domain.OrderStatus
		released map[int64]int
	)

	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = order.Status

		if !from.CanTransitionTo(target) {
			return domain.InvalidTransition(from, target)
		}

		now := s.now()
		var paidAt *time.Time
		if target == domain.OrderPaid {
			// Closes the race between a payment callback and the
			// expiry job that has not fired yet.
			if now.After(order.ExpiresAt) {
				return errors.Wrap(domain.ErrUnprocessable, "cannot pay an expired order")
			}
			paidAt = &now
		}

		if err := s.store.UpdateOrderStatus(ctx, tx, orderID, target, paidAt); err != nil {
			return err
		}

		if itemStatus := domain.ItemStatusFor(target); itemStatus != "" {
			if target.ReleasesCapacity() {
				// Counted before the items flip; grouped per showtime
				// since an order may span more than one.
				released = order.ActiveSeatsByShowtime()
				for showtimeID, n := range released {
					err := s.store.AdjustBookedSeats(ctx, tx, showtimeID, -n)
					if err != nil && !errors.Is(err, domain.ErrNotFound) {
						return err
					}
					// NotFound means the showtime was tombstoned after
					// booking; there is no live ledger to release into.
				}
			}
			if err := s.store.UpdateItemStatuses(ctx, tx, orderID, itemStatus); err != nil {
				return err
			}
			for i := range order.Items {
				order.Items[i].Status = itemStatus
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id": orderID,
			"from":     from,
			"to":       target,
		})
		event := "order." + strings.ToLower(string(target))
		if err := s.store.InsertOutbox(ctx, tx, crdb.NewOrderEvent(orderID, event, payload)); err != nil {
			return err
		}

		order.Status = target
		if paidAt != nil {
			order.PaidAt = paidAt
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	var freed int
	for showtimeID, n := range released {
		freed += n
		if err := s.cache.Invalidate(ctx, showtimeID); err != nil {
			s.logger.Warn("failed to invalidate availability cache", err)
		}
	}
	if freed > 0 {
		observability.SeatsReleased.Add(float64(freed))
	}
	observability.OrderTransitions.WithLabelValues(string(from), string(target)).Inc()
	if s.audit != nil {
		s.audit.LogTransition(ctx, updated, from, target)
	}

	return updated, nil
}

// ExpireOrder is the idempotent deferred expiry action. Duplicate or
// late firings observe a non-PENDING order and do nothing; losing the
// transition race to a concurrent pay or cancel is equally harmless.
func (s *Service) ExpireOrder(ctx context.Context, orderID int64) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status != domain.OrderPending {
		return nil
	}

	_, err = s.Transition(ctx, orderID, domain.OrderExpired)
	if errors.Is(err, domain.ErrUnprocessable) {
		return nil
	}
	return err
}

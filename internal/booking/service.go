package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cinebook/booking/internal/adapters/crdb"
	"github.com/cinebook/booking/internal/domain"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// Store is the transactional persistence surface the booking core
// needs. *crdb.Repository implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error

	GetShowtime(ctx context.Context, id int64) (*domain.Showtime, error)
	GetShowtimeForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Showtime, error)
	AdjustBookedSeats(ctx context.Context, tx pgx.Tx, showtimeID int64, delta int) error

	ListSeats(ctx context.Context, studioID int64) ([]domain.Seat, error)
	SeatsByIDs(ctx context.Context, tx pgx.Tx, ids []int64) ([]domain.Seat, error)
	UnavailableSeats(ctx context.Context, showtimeID int64, seatIDs []int64) ([]int64, error)
	UnavailableSeatsTx(ctx context.Context, tx pgx.Tx, showtimeID int64, seatIDs []int64) ([]int64, error)

	InsertOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, f crdb.OrderFilter) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, tx pgx.Tx, id int64, status domain.OrderStatus, paidAt *time.Time) error
	UpdateItemStatuses(ctx context.Context, tx pgx.Tx, orderID int64, status domain.ItemStatus) error

	InsertOutbox(ctx context.Context, tx pgx.Tx, record crdb.OutboxRecord) error
}

// Catalog resolves movie snapshot fields at booking time.
type Catalog interface {
	GetMovie(ctx context.Context, id int64) (*domain.Movie, error)
}

// AvailabilityCache fronts the seat availability listing.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, showtimeID int64, dest interface{}) (bool, error)
	SetAvailability(ctx context.Context, showtimeID int64, value interface{}) error
	Invalidate(ctx context.Context, showtimeID int64) error
}

// ExpiryScheduler arranges a deferred expiry action for an order; the
// delivery is at-least-once and the action idempotent, so duplicate
// firings are safe.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, orderID int64, deadline time.Time) error
}

// Audit records order lifecycle events out of band.
type Audit interface {
	LogOrderCreated(ctx context.Context, order *domain.Order)
	LogTransition(ctx context.Context, order *domain.Order, from, to domain.OrderStatus)
}

type Service struct {
	store     Store
	catalog   Catalog
	cache     AvailabilityCache
	scheduler ExpiryScheduler
	audit     Audit
	logger    observability.Logger
	window    time.Duration
	now       func() time.Time
}

func NewService(store Store, catalog Catalog, cache AvailabilityCache, scheduler ExpiryScheduler, audit Audit, logger observability.Logger, window time.Duration) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		cache:     cache,
		scheduler: scheduler,
		audit:     audit,
		logger:    logger,
		window:    window,
		now:       time.Now,
	}
}

// CreateOrder reserves the requested seats in one transaction: lock the
// showtime's capacity row, validate the request against the active
// reservations, persist the PENDING order with its items and outbox
// record, and move the ledger. The expiry job is scheduled only after
// the transaction commits.
func (s *Service) CreateOrder(ctx context.Context, userID, showtimeID int64, seatIDs []int64, paymentMethod string) (*domain.Order, error) {
	if len(seatIDs) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "no seats requested")
	}
	if dup := firstDuplicate(seatIDs); dup != 0 {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "seat %d requested twice", dup)
	}

	var order *domain.Order
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		st, err := s.store.GetShowtimeForUpdate(ctx, tx, showtimeID)
		if err != nil {
			return err
		}
		if st.Started(s.now()) {
			return errors.Wrap(domain.ErrInvalidInput, "cannot book a past or ongoing showtime")
		}

		seats, err := s.store.SeatsByIDs(ctx, tx, seatIDs)
		if err != nil {
			return err
		}
		byID := make(map[int64]domain.Seat, len(seats))
		for _, seat := range seats {
			byID[seat.ID] = seat
		}
		var missing, foreign []int64
		for _, id := range seatIDs {
			seat, ok := byID[id]
			switch {
			case !ok:
				missing = append(missing, id)
			case seat.StudioID != st.StudioID:
				foreign = append(foreign, id)
			}
		}
		if len(missing) > 0 {
			return errors.Wrapf(domain.ErrInvalidInput, "unknown seats: %v", missing)
		}
		if len(foreign) > 0 {
			return errors.Wrapf(domain.ErrInvalidInput, "seats not in studio %d: %v", st.StudioNumber, foreign)
		}

		taken, err := s.store.UnavailableSeatsTx(ctx, tx, showtimeID, seatIDs)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return errors.Wrapf(domain.ErrInvalidInput, "seats already reserved: %v", taken)
		}

		if len(seatIDs) > st.Remaining() {
			return errors.Wrapf(domain.ErrInvalidInput, "insufficient capacity: %d seats remaining", st.Remaining())
		}

		movie, err := s.catalog.GetMovie(ctx, st.MovieID)
		if err != nil {
			return err
		}

		requested := make([]domain.Seat, len(seatIDs))
		for i, id := range seatIDs {
			requested[i] = byID[id]
		}

		order = domain.NewOrder(userID, paymentMethod, st, movie, requested, s.now(), s.window)
		if err := s.store.InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := s.store.AdjustBookedSeats(ctx, tx, showtimeID, len(seatIDs)); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id": order.ID,
			"number":   order.Number,
			"status":   order.Status,
		})
		return s.store.InsertOutbox(ctx, tx, crdb.NewOrderEvent(order.ID, "order.created", payload))
	})
	if err != nil {
		return nil, err
	}

	// A scheduling failure is not fatal: the worker's DB sweep picks
	// up any overdue PENDING order the queue missed.
	if err := s.scheduler.Schedule(ctx, order.ID, order.ExpiresAt); err != nil {
		s.logger.WithField("order_id", order.ID).Warn("failed to schedule expiry", err)
	}
	if err := s.cache.Invalidate(ctx, showtimeID); err != nil {
		s.logger.Warn("failed to invalidate availability cache", err)
	}
	if s.audit != nil {
		s.audit.LogOrderCreated(ctx, order)
	}
	observability.OrdersCreated.Inc()
	observability.SeatsReserved.Add(float64(len(seatIDs)))

	return order, nil
}

// UnavailableSeats is the read-only availability resolver: the subset
// of seatIDs held by an active reservation for the showtime.
func (s *Service) UnavailableSeats(ctx context.Context, showtimeID int64, seatIDs []int64) ([]int64, error) {
	st, err := s.store.GetShowtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	studioSeats, err := s.store.ListSeats(ctx, st.StudioID)
	if err != nil {
		return nil, err
	}
	known := make(map[int64]bool, len(studioSeats))
	for _, seat := range studioSeats {
		known[seat.ID] = true
	}
	var foreign []int64
	for _, id := range seatIDs {
		if !known[id] {
			foreign = append(foreign, id)
		}
	}
	if len(foreign) > 0 {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "seats not in studio %d: %v", st.StudioNumber, foreign)
	}
	return s.store.UnavailableSeats(ctx, showtimeID, seatIDs)
}

// SeatAvailability is one row of the seat map listing.
type SeatAvailability struct {
	SeatID    int64  `json:"seat_id"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

// AvailableSeats lists every seat of the showtime's studio with its
// availability flag, cached per showtime.
func (s *Service) AvailableSeats(ctx context.Context, showtimeID int64) ([]SeatAvailability, error) {
	st, err := s.store.GetShowtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}

	var cached []SeatAvailability
	hit, err := s.cache.GetAvailability(ctx, showtimeID, &cached)
	if err != nil {
		s.logger.Warn("availability cache read failed", err)
	}
	if hit {
		return cached, nil
	}

	seats, err := s.store.ListSeats(ctx, st.StudioID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(seats))
	for i, seat := range seats {
		ids[i] = seat.ID
	}
	taken, err := s.store.UnavailableSeats(ctx, showtimeID, ids)
	if err != nil {
		return nil, err
	}
	takenSet := make(map[int64]bool, len(taken))
	for _, id := range taken {
		takenSet[id] = true
	}

	result := make([]SeatAvailability, len(seats))
	for i, seat := range seats {
		result[i] = SeatAvailability{
			SeatID:    seat.ID,
			Label:     seat.Label(),
			Available: !takenSet[seat.ID],
		}
	}
	if err := s.cache.SetAvailability(ctx, showtimeID, result); err != nil {
		s.logger.Warn("availability cache write failed", err)
	}
	return result, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, f crdb.OrderFilter) ([]domain.Order, error) {
	return s.store.ListOrders(ctx, f)
}

func firstDuplicate(ids []int64) int64 {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id
		}
		seen[id] = true
	}
	return 0
}

package schedule

import (
	"context"
	"time"

	"github.com/cinebook/booking/internal/domain"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// Store is the persistence surface for showtime scheduling.
// *crdb.Repository implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetShowtime(ctx context.Context, id int64) (*domain.Showtime, error)
	GetStudio(ctx context.Context, id int64) (*domain.Studio, error)
	HasOverlappingShowtime(ctx context.Context, tx pgx.Tx, studioID int64, date, start, end time.Time, excludeID int64) (bool, error)
	CountConfirmedItems(ctx context.Context, showtimeID int64) (int, error)
	InsertShowtime(ctx context.Context, tx pgx.Tx, st *domain.Showtime) error
	UpdateShowtime(ctx context.Context, tx pgx.Tx, st *domain.Showtime) error
	SoftDeleteShowtime(ctx context.Context, tx pgx.Tx, id int64) error
}

// Validator guards showtime mutations: no two live showtimes may
// overlap in the same studio on the same date, and a showtime with
// confirmed bookings is frozen.
type Validator struct {
	store  Store
	logger observability.Logger
}

func NewValidator(store Store, logger observability.Logger) *Validator {
	return &Validator{store: store, logger: logger}
}

type ShowtimeInput struct {
	MovieID   int64
	StudioID  int64
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
	Price     float64
}

func (in ShowtimeInput) validate() error {
	if !in.StartTime.Before(in.EndTime) {
		return errors.Wrap(domain.ErrInvalidInput, "start time must precede end time")
	}
	if in.Price < 0 {
		return errors.Wrap(domain.ErrInvalidInput, "negative price")
	}
	return nil
}

func (v *Validator) CreateShowtime(ctx context.Context, in ShowtimeInput) (*domain.Showtime, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	studio, err := v.store.GetStudio(ctx, in.StudioID)
	if err != nil {
		return nil, err
	}

	st := &domain.Showtime{
		MovieID:        in.MovieID,
		StudioID:       in.StudioID,
		Date:           in.Date,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		Price:          in.Price,
		StudioNumber:   studio.Number,
		StudioCapacity: studio.Capacity,
	}
	err = v.store.WithTx(ctx, func(tx pgx.Tx) error {
		conflict, err := v.store.HasOverlappingShowtime(ctx, tx, in.StudioID, in.Date, in.StartTime, in.EndTime, 0)
		if err != nil {
			return err
		}
		if conflict {
			return errors.Wrapf(domain.ErrConflict, "studio %d already scheduled in that window", studio.Number)
		}
		return v.store.InsertShowtime(ctx, tx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (v *Validator) UpdateShowtime(ctx context.Context, id int64, in ShowtimeInput) (*domain.Showtime, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	current, err := v.store.GetShowtime(ctx, id)
	if err != nil {
		return nil, err
	}

	identityChanged := current.MovieID != in.MovieID ||
		current.StudioID != in.StudioID ||
		!current.StartTime.Equal(in.StartTime) ||
		!current.EndTime.Equal(in.EndTime) ||
		!current.Date.Equal(in.Date)
	if identityChanged {
		if err := v.ensureNoConfirmedBookings(ctx, id); err != nil {
			return nil, err
		}
	}

	studio, err := v.store.GetStudio(ctx, in.StudioID)
	if err != nil {
		return nil, err
	}

	st := &domain.Showtime{
		ID:             id,
		MovieID:        in.MovieID,
		StudioID:       in.StudioID,
		Date:           in.Date,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		Price:          in.Price,
		BookedSeats:    current.BookedSeats,
		StudioNumber:   studio.Number,
		StudioCapacity: studio.Capacity,
	}
	err = v.store.WithTx(ctx, func(tx pgx.Tx) error {
		conflict, err := v.store.HasOverlappingShowtime(ctx, tx, in.StudioID, in.Date, in.StartTime, in.EndTime, id)
		if err != nil {
			return err
		}
		if conflict {
			return errors.Wrapf(domain.ErrConflict, "studio %d already scheduled in that window", studio.Number)
		}
		return v.store.UpdateShowtime(ctx, tx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (v *Validator) DeleteShowtime(ctx context.Context, id int64) error {
	if _, err := v.store.GetShowtime(ctx, id); err != nil {
		return err
	}
	if err := v.ensureNoConfirmedBookings(ctx, id); err != nil {
		return err
	}
	return v.store.WithTx(ctx, func(tx pgx.Tx) error {
		return v.store.SoftDeleteShowtime(ctx, tx, id)
	})
}

func (v *Validator) ensureNoConfirmedBookings(ctx context.Context, id int64) error {
	n, err := v.store.CountConfirmedItems(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.Wrapf(domain.ErrUnprocessable, "showtime has %d confirmed bookings", n)
	}
	return nil
}

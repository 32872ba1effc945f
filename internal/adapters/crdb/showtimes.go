package crdb

import (
	"context"
	"time"

	"github.com/cinebook/booking/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

const showtimeColumns = `
	st.id, st.movie_id, st.studio_id, st.date, st.start_time, st.end_time,
	st.price, st.booked_seats, st.deleted_at, s.number, s.capacity`

func scanShowtime(row pgx.Row) (*domain.Showtime, error) {
	var st domain.Showtime
	err := row.Scan(
		&st.ID, &st.MovieID, &st.StudioID, &st.Date, &st.StartTime, &st.EndTime,
		&st.Price, &st.BookedSeats, &st.DeletedAt, &st.StudioNumber, &st.StudioCapacity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(domain.ErrNotFound, "showtime")
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Repository) GetShowtime(ctx context.Context, id int64) (*domain.Showtime, error) {
	return scanShowtime(r.pool.QueryRow(ctx, `
		SELECT `+showtimeColumns+`
		FROM showtimes st JOIN studios s ON s.id = st.studio_id
		WHERE st.id = $1 AND st.deleted_at IS NULL
	`, id))
}

// GetShowtimeForUpdate locks the showtime's capacity row for the rest of
// the transaction. Every booked_seats read-modify-write goes through
// this lock.
func (r *Repository) GetShowtimeForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Showtime, error) {
	return scanShowtime(tx.QueryRow(ctx, `
		SELECT `+showtimeColumns+`
		FROM showtimes st JOIN studios s ON s.id = st.studio_id
		WHERE st.id = $1 AND st.deleted_at IS NULL
		FOR UPDATE OF st
	`, id))
}

// AdjustBookedSeats moves the denormalized capacity counter. The caller
// must hold the row lock from GetShowtimeForUpdate; the check constraint
// rejects a drift below zero.
func (r *Repository) AdjustBookedSeats(ctx context.Context, tx pgx.Tx, showtimeID int64, delta int) error {
	result, err := tx.Exec(ctx, `
		UPDATE showtimes SET booked_seats = booked_seats + $2
		WHERE id = $1 AND deleted_at IS NULL
	`, showtimeID, delta)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrap(domain.ErrNotFound, "showtime")
	}
	return nil
}

func (r *Repository) GetStudio(ctx context.Context, id int64) (*domain.Studio, error) {
	var s domain.Studio
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, capacity FROM studios WHERE id = $1
	`, id).Scan(&s.ID, &s.Number, &s.Capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(domain.ErrNotFound, "studio")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) ListSeats(ctx context.Context, studioID int64) ([]domain.Seat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, studio_id, row_label, number
		FROM seats WHERE studio_id = $1
		ORDER BY row_label, number
	`, studioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.StudioID, &s.RowLabel, &s.Number); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// SeatsByIDs loads the requested seats inside the booking transaction so
// the ownership check shares the reservation's isolation boundary.
func (r *Repository) SeatsByIDs(ctx context.Context, tx pgx.Tx, ids []int64) ([]domain.Seat, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, studio_id, row_label, number
		FROM seats WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.StudioID, &s.RowLabel, &s.Number); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func (r *Repository) unavailableSeats(ctx context.Context, q querier, showtimeID int64, seatIDs []int64) ([]int64, error) {
	rows, err := q.Query(ctx, `
		SELECT DISTINCT oi.seat_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.showtime_id = $1
		  AND oi.seat_id = ANY($2)
		  AND o.status NOT IN ('CANCELLED', 'EXPIRED')
	`, showtimeID, seatIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

// UnavailableSeats returns the subset of seatIDs held by an active
// reservation for the showtime. A seat is unavailable while any item
// referencing it belongs to an order that is neither CANCELLED nor
// EXPIRED.
func (r *Repository) UnavailableSeats(ctx context.Context, showtimeID int64, seatIDs []int64) ([]int64, error) {
	return r.unavailableSeats(ctx, r.pool, showtimeID, seatIDs)
}

// UnavailableSeatsTx is the same check run inside the reservation
// transaction, after the showtime row lock is held.
func (r *Repository) UnavailableSeatsTx(ctx context.Context, tx pgx.Tx, showtimeID int64, seatIDs []int64) ([]int64, error) {
	return r.unavailableSeats(ctx, tx, showtimeID, seatIDs)
}

// HasOverlappingShowtime checks for a schedule conflict: another live
// showtime in the same studio on the same date whose inclusive interval
// intersects [start, end]. excludeID skips the candidate's own row on
// updates.
func (r *Repository) HasOverlappingShowtime(ctx context.Context, tx pgx.Tx, studioID int64, date time.Time, start, end time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM showtimes
			WHERE studio_id = $1 AND date = $2 AND deleted_at IS NULL
			  AND id <> $5
			  AND start_time <= $4 AND end_time >= $3
		)
	`, studioID, date, start, end, excludeID).Scan(&exists)
	return exists, err
}

// CountConfirmedItems counts CONFIRMED order items referencing the
// showtime; a non-zero count freezes the showtime's identity.
func (r *Repository) CountConfirmedItems(ctx context.Context, showtimeID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM order_items
		WHERE showtime_id = $1 AND status = 'CONFIRMED'
	`, showtimeID).Scan(&n)
	return n, err
}

func (r *Repository) InsertShowtime(ctx context.Context, tx pgx.Tx, st *domain.Showtime) error {
	return tx.QueryRow(ctx, `
		INSERT INTO showtimes (movie_id, studio_id, date, start_time, end_time, price, booked_seats)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING id
	`, st.MovieID, st.StudioID, st.Date, st.StartTime, st.EndTime, st.Price).Scan(&st.ID)
}

func (r *Repository) UpdateShowtime(ctx context.Context, tx pgx.Tx, st *domain.Showtime) error {
	result, err := tx.Exec(ctx, `
		UPDATE showtimes
		SET movie_id = $2, studio_id = $3, date = $4, start_time = $5, end_time = $6, price = $7
		WHERE id = $1 AND deleted_at IS NULL
	`, st.ID, st.MovieID, st.StudioID, st.Date, st.StartTime, st.EndTime, st.Price)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrap(domain.ErrNotFound, "showtime")
	}
	return nil
}

// SoftDeleteShowtime tombstones the showtime; every availability,
// overlap and capacity query filters the tombstone out explicitly.
func (r *Repository) SoftDeleteShowtime(ctx context.Context, tx pgx.Tx, id int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE showtimes SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrap(domain.ErrNotFound, "showtime")
	}
	return nil
}

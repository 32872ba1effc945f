package domain

import (
	"strconv"
	"time"
)

type Studio struct {
	ID       int64
	Number   int
	Capacity int
}

type Seat struct {
	ID       int64
	StudioID int64
	RowLabel string
	Number   int
}

// Label is the human-readable seat name, e.g. "A12".
func (s Seat) Label() string {
	return s.RowLabel + strconv.Itoa(s.Number)
}

type Showtime struct {
	ID          int64
	MovieID     int64
	StudioID    int64
	Date        time.Time
	StartTime   time.Time
	EndTime     time.Time
	Price       float64
	BookedSeats int
	DeletedAt   *time.Time

	// Studio fields joined for capacity checks and snapshots.
	StudioNumber   int
	StudioCapacity int
}

// Remaining is the number of seats still bookable.
func (s *Showtime) Remaining() int {
	return s.StudioCapacity - s.BookedSeats
}

// Started reports whether the screening has begun.
func (s *Showtime) Started(now time.Time) bool {
	return !now.Before(s.StartTime)
}

// Overlaps is the inclusive interval test used for schedule conflicts:
// two showtimes collide when neither ends strictly before the other starts.
func (s *Showtime) Overlaps(start, end time.Time) bool {
	return !s.StartTime.After(end) && !s.EndTime.Before(start)
}

// Movie is the catalog snapshot embedded into order items.
type Movie struct {
	ID        int64
	Title     string
	PosterURL string
	Rating    float64
}

// User carries the fields needed for order response composition.
type User struct {
	ID    int64
	Name  string
	Email string
}

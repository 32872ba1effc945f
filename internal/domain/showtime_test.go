package domain_test

import (
	"testing"
	"time"

	"github.com/cinebook/booking/internal/domain"
	"github.com/stretchr/testify/assert"
)

func at(hour, min int) time.Time {
	return time.Date(2023, 12, 1, hour, min, 0, 0, time.UTC)
}

func TestShowtimeOverlaps(t *testing.T) {
	st := &domain.Showtime{StartTime: at(14, 0), EndTime: at(16, 0)}

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"starts inside", at(15, 0), at(17, 0), true},
		{"ends inside", at(13, 0), at(15, 0), true},
		{"contains", at(13, 0), at(17, 0), true},
		{"contained", at(14, 30), at(15, 30), true},
		{"identical", at(14, 0), at(16, 0), true},
		{"touching end", at(16, 0), at(18, 0), true},
		{"touching start", at(12, 0), at(14, 0), true},
		{"before", at(11, 0), at(13, 0), false},
		{"after", at(16, 30), at(18, 0), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, st.Overlaps(c.start, c.end))
		})
	}
}

func TestShowtimeRemaining(t *testing.T) {
	st := &domain.Showtime{StudioCapacity: 10, BookedSeats: 3}
	assert.Equal(t, 7, st.Remaining())
}

func TestShowtimeStarted(t *testing.T) {
	st := &domain.Showtime{StartTime: at(14, 0)}
	assert.False(t, st.Started(at(13, 59)))
	assert.True(t, st.Started(at(14, 0)))
	assert.True(t, st.Started(at(15, 0)))
}

func TestSeatLabel(t *testing.T) {
	assert.Equal(t, "A1", domain.Seat{RowLabel: "A", Number: 1}.Label())
	assert.Equal(t, "F12", domain.Seat{RowLabel: "F", Number: 12}.Label())
}

package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/cinebook/booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	st := &domain.Showtime{
		ID:           7,
		Price:        50,
		StudioNumber: 1,
		Date:         at(0, 0),
		StartTime:    at(14, 0),
		EndTime:      at(16, 0),
	}
	movie := &domain.Movie{ID: 3, Title: "Blade Runner", PosterURL: "http://p/br.jpg"}
	seats := []domain.Seat{
		{ID: 11, RowLabel: "A", Number: 1},
		{ID: 12, RowLabel: "A", Number: 2},
	}

	now := time.Date(2023, 12, 1, 13, 0, 0, 0, time.UTC)
	order := domain.NewOrder(42, "card", st, movie, seats, now, 2*time.Minute)

	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, int64(42), order.UserID)
	assert.Equal(t, 100.0, order.TotalPrice)
	assert.True(t, strings.HasPrefix(order.Number, "ORD-"))
	assert.Len(t, order.Number, 12)
	assert.Nil(t, order.PaidAt)

	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, now.Add(2*time.Minute), order.ExpiresAt)

	require.Len(t, order.Items, 2)
	item := order.Items[0]
	assert.Equal(t, int64(7), item.ShowtimeID)
	assert.Equal(t, int64(11), item.SeatID)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, 50.0, item.Price)
	assert.Equal(t, 50.0, item.Subtotal)
	assert.Equal(t, domain.ItemPending, item.Status)
	assert.Equal(t, "Blade Runner", item.Snapshot.MovieTitle)
	assert.Equal(t, "A1", item.Snapshot.SeatLabel)
	assert.Equal(t, 1, item.Snapshot.StudioNumber)
	assert.Equal(t, "A2", order.Items[1].Snapshot.SeatLabel)
}

func TestActiveSeatsByShowtime(t *testing.T) {
	order := &domain.Order{Items: []domain.OrderItem{
		{ShowtimeID: 1, SeatID: 10, Status: domain.ItemPending},
		{ShowtimeID: 1, SeatID: 11, Status: domain.ItemConfirmed},
		{ShowtimeID: 1, SeatID: 12, Status: domain.ItemCancelled},
		{ShowtimeID: 2, SeatID: 10, Status: domain.ItemPending},
		// duplicate seat must not double-count
		{ShowtimeID: 2, SeatID: 10, Status: domain.ItemPending},
	}}

	counts := order.ActiveSeatsByShowtime()
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, counts)
}

func TestNewOrderNumberUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := domain.NewOrderNumber()
		assert.False(t, seen[n], "duplicate order number %s", n)
		seen[n] = true
	}
}

package crdb_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cinebook/booking/internal/adapters/crdb"
	"github.com/cinebook/booking/internal/domain"
)

func startRepo(t *testing.T) (*crdb.Repository, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.Endpoint(ctx, "postgresql")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../migrations/schema.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	return crdb.NewRepository(pool), pool
}

// seedShowtime creates a studio with three seats and one showtime,
// returning the showtime and seat ids.
func seedShowtime(t *testing.T, pool *pgxpool.Pool) (int64, []int64) {
	t.Helper()
	ctx := context.Background()

	var studioID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO studios (number, capacity) VALUES (1, 3) RETURNING id
	`).Scan(&studioID)
	require.NoError(t, err)

	seatIDs := make([]int64, 3)
	for i := range seatIDs {
		err := pool.QueryRow(ctx, `
			INSERT INTO seats (studio_id, row_label, number) VALUES ($1, 'A', $2) RETURNING id
		`, studioID, i+1).Scan(&seatIDs[i])
		require.NoError(t, err)
	}

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	var showtimeID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO showtimes (movie_id, studio_id, date, start_time, end_time, price)
		VALUES (3, $1, $2, $3, $4, 50) RETURNING id
	`, studioID, start.Truncate(24*time.Hour), start, start.Add(2*time.Hour)).Scan(&showtimeID)
	require.NoError(t, err)

	return showtimeID, seatIDs
}

func insertOrder(t *testing.T, repo *crdb.Repository, showtimeID int64, seatIDs []int64) *domain.Order {
	t.Helper()
	ctx := context.Background()

	order := &domain.Order{
		Number:        domain.NewOrderNumber(),
		UserID:        42,
		PaymentMethod: "card",
		Status:        domain.OrderPending,
		TotalPrice:    50 * float64(len(seatIDs)),
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(2 * time.Minute),
	}
	for _, seatID := range seatIDs {
		order.Items = append(order.Items, domain.OrderItem{
			ShowtimeID: showtimeID,
			SeatID:     seatID,
			Quantity:   1,
			Price:      50,
			Subtotal:   50,
			Status:     domain.ItemPending,
			Snapshot:   domain.ItemSnapshot{MovieTitle: "Blade Runner", SeatLabel: "A1", Price: 50},
		})
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		if err := repo.InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		return repo.AdjustBookedSeats(ctx, tx, showtimeID, len(seatIDs))
	})
	require.NoError(t, err)
	return order
}

func TestRepositoryOrderLifecycle(t *testing.T) {
	repo, pool := startRepo(t)
	ctx := context.Background()
	showtimeID, seatIDs := seedShowtime(t, pool)

	order := insertOrder(t, repo, showtimeID, seatIDs[:2])
	require.NotZero(t, order.ID)
	require.NotZero(t, order.Items[0].ID)

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, fetched.Status)
	require.Len(t, fetched.Items, 2)
	assert.Equal(t, "Blade Runner", fetched.Items[0].Snapshot.MovieTitle)

	st, err := repo.GetShowtime(ctx, showtimeID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.BookedSeats)
	assert.Equal(t, 1, st.Remaining())

	paidAt := time.Now().UTC()
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		if err := repo.UpdateOrderStatus(ctx, tx, order.ID, domain.OrderPaid, &paidAt); err != nil {
			return err
		}
		return repo.UpdateItemStatuses(ctx, tx, order.ID, domain.ItemConfirmed)
	})
	require.NoError(t, err)

	fetched, err = repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, fetched.Status)
	require.NotNil(t, fetched.PaidAt)
	for _, item := range fetched.Items {
		assert.Equal(t, domain.ItemConfirmed, item.Status)
	}

	_, err = repo.GetOrder(ctx, 999999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRepositoryActiveSeatConflict(t *testing.T) {
	repo, pool := startRepo(t)
	ctx := context.Background()
	showtimeID, seatIDs := seedShowtime(t, pool)

	insertOrder(t, repo, showtimeID, seatIDs[:1])

	conflicting := &domain.Order{
		Number:        domain.NewOrderNumber(),
		UserID:        43,
		PaymentMethod: "card",
		Status:        domain.OrderPending,
		TotalPrice:    50,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(2 * time.Minute),
		Items: []domain.OrderItem{{
			ShowtimeID: showtimeID,
			SeatID:     seatIDs[0],
			Quantity:   1,
			Price:      50,
			Subtotal:   50,
			Status:     domain.ItemPending,
			Snapshot:   domain.ItemSnapshot{SeatLabel: "A1"},
		}},
	}
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOrder(ctx, tx, conflicting)
	})
	assert.True(t, errors.Is(err, domain.ErrConflict), "expected conflict, got %v", err)
}

func TestRepositoryUnavailableSeats(t *testing.T) {
	repo, pool := startRepo(t)
	ctx := context.Background()
	showtimeID, seatIDs := seedShowtime(t, pool)

	order := insertOrder(t, repo, showtimeID, seatIDs[:2])

	taken, err := repo.UnavailableSeats(ctx, showtimeID, seatIDs)
	require.NoError(t, err)
	assert.ElementsMatch(t, seatIDs[:2], taken)

	// Cancelling frees the seats for the availability query.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		if err := repo.UpdateOrderStatus(ctx, tx, order.ID, domain.OrderCancelled, nil); err != nil {
			return err
		}
		return repo.UpdateItemStatuses(ctx, tx, order.ID, domain.ItemCancelled)
	})
	require.NoError(t, err)

	taken, err = repo.UnavailableSeats(ctx, showtimeID, seatIDs)
	require.NoError(t, err)
	assert.Empty(t, taken)
}

func TestRepositoryOverduePendingOrders(t *testing.T) {
	repo, pool := startRepo(t)
	ctx := context.Background()
	showtimeID, seatIDs := seedShowtime(t, pool)

	order := insertOrder(t, repo, showtimeID, seatIDs[:1])

	ids, err := repo.OverduePendingOrders(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Empty(t, ids, "deadline not reached yet")

	ids, err = repo.OverduePendingOrders(ctx, time.Now().Add(5*time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{order.ID}, ids)
}

func TestRepositoryShowtimeScheduling(t *testing.T) {
	repo, pool := startRepo(t)
	ctx := context.Background()
	showtimeID, _ := seedShowtime(t, pool)

	st, err := repo.GetShowtime(ctx, showtimeID)
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		conflict, err := repo.HasOverlappingShowtime(ctx, tx, st.StudioID, st.Date,
			st.StartTime.Add(time.Hour), st.EndTime.Add(time.Hour), 0)
		require.NoError(t, err)
		assert.True(t, conflict)

		// Excluding its own row clears the conflict.
		conflict, err = repo.HasOverlappingShowtime(ctx, tx, st.StudioID, st.Date,
			st.StartTime, st.EndTime, showtimeID)
		require.NoError(t, err)
		assert.False(t, conflict)
		return nil
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.SoftDeleteShowtime(ctx, tx, showtimeID)
	})
	require.NoError(t, err)

	_, err = repo.GetShowtime(ctx, showtimeID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// The tombstone no longer counts as a schedule conflict.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		conflict, err := repo.HasOverlappingShowtime(ctx, tx, st.StudioID, st.Date,
			st.StartTime, st.EndTime, 0)
		require.NoError(t, err)
		assert.False(t, conflict)
		return nil
	})
	require.NoError(t, err)
}

func TestRepositoryOutbox(t *testing.T) {
	repo, _ := startRepo(t)
	ctx := context.Background()

	rec := crdb.NewOrderEvent(7, "order.created", []byte(`{"order_id":7}`))
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.InsertOutbox(ctx, tx, rec)
	})
	require.NoError(t, err)

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "order.created", records[0].EventType)
	assert.Equal(t, rec.DedupeKey, records[0].DedupeKey)

	age, err := repo.OldestUnpublishedAge(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Greater(t, age, time.Duration(0))

	require.NoError(t, repo.MarkPublished(ctx, rec.ID, time.Now()))

	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	age, err = repo.OldestUnpublishedAge(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), age)
}

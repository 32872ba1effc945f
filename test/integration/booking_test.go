package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cinebook/booking/internal/adapters/crdb"
	mongoadapter "github.com/cinebook/booking/internal/adapters/mongo"
	"github.com/cinebook/booking/internal/adapters/rabbit"
	redisadapter "github.com/cinebook/booking/internal/adapters/redis"
	"github.com/cinebook/booking/internal/booking"
	"github.com/cinebook/booking/internal/config"
	"github.com/cinebook/booking/internal/expiry"
	httphandler "github.com/cinebook/booking/internal/http"
	"github.com/cinebook/booking/internal/idempotency"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cinebook/booking/internal/rateLimit"
	"github.com/cinebook/booking/internal/schedule"
)

const baseURL = "http://localhost:18081"

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })
	return container
}

func TestIntegrationBookingFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	crdbContainer := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	})
	mongoContainer := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
	})
	redisContainer := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
	})
	rabbitContainer := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
	})

	crdbHost, err := crdbContainer.Host(ctx)
	require.NoError(t, err)
	crdbPort, err := crdbContainer.MappedPort(ctx, "26257")
	require.NoError(t, err)
	mongoHost, err := mongoContainer.Host(ctx)
	require.NoError(t, err)
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	require.NoError(t, err)
	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)
	rabbitHost, err := rabbitContainer.Host(ctx)
	require.NoError(t, err)
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	require.NoError(t, err)

	cfg := &config.Config{
		PGDSN:         "postgresql://root@" + crdbHost + ":" + crdbPort.Port() + "/defaultdb?sslmode=disable",
		MongoURI:      "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:     redisHost + ":" + redisPort.Port(),
		RabbitURL:     "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		HTTPAddr:      ":18081",
		OrderTTL:      3 * time.Second,
		SweepInterval: time.Second,
	}

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	require.NoError(t, err)
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	schema, err := os.ReadFile("../../migrations/schema.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	require.NoError(t, err)
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("cinebook")
	logger := observability.NewLogger()
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	users := mongoadapter.NewUserRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	require.NoError(t, err)
	defer rabbitConn.Close()
	delayQueue, err := rabbit.NewDelayQueue(rabbitConn)
	require.NoError(t, err)
	consumer, err := rabbit.NewConsumer(rabbitConn, rabbit.ExpiryDueQueue)
	require.NoError(t, err)

	svc := booking.NewService(repo, catalog, cache, delayQueue, audit, logger, cfg.OrderTTL)
	validator := schedule.NewValidator(repo, logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	worker := expiry.NewWorker(consumer, repo, svc, logger, cfg.SweepInterval)
	go worker.Run(workerCtx)

	handlers := httphandler.NewHandlers(cfg, svc, validator, users, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go srv.ListenAndServe()
	defer srv.Shutdown(ctx)

	// Seed studio, seats, movie and user.
	var studioID int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO studios (number, capacity) VALUES (1, 3) RETURNING id
	`).Scan(&studioID))
	seatIDs := make([]int64, 3)
	for i := range seatIDs {
		require.NoError(t, pool.QueryRow(ctx, `
			INSERT INTO seats (studio_id, row_label, number) VALUES ($1, 'A', $2) RETURNING id
		`, studioID, i+1).Scan(&seatIDs[i]))
	}
	require.NoError(t, catalog.UpsertMovie(ctx, mongoadapter.MovieDoc{
		ID: 3, Title: "Blade Runner", PosterURL: "http://p/br.jpg", Rating: 8.1,
	}))
	_, err = mongoDB.Collection("users").InsertOne(ctx, mongoadapter.UserDoc{
		ID: 42, Name: "Rick Deckard", Email: "rick@example.com",
	})
	require.NoError(t, err)

	// Wait for the server to come up.
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/v1/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)

	// Schedule a showtime tomorrow.
	day := time.Now().UTC().Add(24 * time.Hour).Truncate(24 * time.Hour)
	showtime := postJSON(t, "/v1/showtimes", "", map[string]interface{}{
		"movie_id":   3,
		"studio_id":  studioID,
		"date":       day.Format("2006-01-02"),
		"start_time": day.Add(14 * time.Hour).Format(time.RFC3339),
		"end_time":   day.Add(16 * time.Hour).Format(time.RFC3339),
		"price":      50,
	}, http.StatusCreated)
	showtimeID := int64(showtime["id"].(float64))

	// An overlapping slot in the same studio is rejected.
	postJSON(t, "/v1/showtimes", "", map[string]interface{}{
		"movie_id":   3,
		"studio_id":  studioID,
		"date":       day.Format("2006-01-02"),
		"start_time": day.Add(15 * time.Hour).Format(time.RFC3339),
		"end_time":   day.Add(17 * time.Hour).Format(time.RFC3339),
		"price":      50,
	}, http.StatusConflict)

	// Book two seats.
	key := uuid.New().String()
	orderReq := map[string]interface{}{
		"showtime_id":    showtimeID,
		"seat_ids":       seatIDs[:2],
		"user_id":        42,
		"payment_method": "card",
	}
	order := postJSON(t, "/v1/orders", key, orderReq, http.StatusCreated)
	orderID := int64(order["id"].(float64))
	assert.Equal(t, "PENDING", order["status"])
	assert.Equal(t, 100.0, order["total_price"])
	if assert.NotNil(t, order["user"]) {
		assert.Equal(t, "Rick Deckard", order["user"].(map[string]interface{})["name"])
	}

	// A retry with the same idempotency key replays the stored response.
	replayed := postJSON(t, "/v1/orders", key, orderReq, http.StatusCreated)
	assert.Equal(t, orderID, int64(replayed["id"].(float64)))

	// A different client asking for the same seat is turned away.
	postJSON(t, "/v1/orders", uuid.New().String(), map[string]interface{}{
		"showtime_id":    showtimeID,
		"seat_ids":       seatIDs[:1],
		"user_id":        43,
		"payment_method": "card",
	}, http.StatusBadRequest)

	// The seat map reflects the reservation.
	seats := getJSON(t, "/v1/showtimes/"+itoa(showtimeID)+"/seats", http.StatusOK)
	available := map[string]bool{}
	for _, raw := range seats["seats"].([]interface{}) {
		s := raw.(map[string]interface{})
		available[s["label"].(string)] = s["available"].(bool)
	}
	assert.False(t, available["A1"])
	assert.False(t, available["A2"])
	assert.True(t, available["A3"])

	// Pay before the deadline.
	paid := postJSON(t, "/v1/orders/"+itoa(orderID)+"/status", "", map[string]interface{}{
		"status": "PAID",
	}, http.StatusOK)
	assert.Equal(t, "PAID", paid["status"])
	assert.NotNil(t, paid["paid_at"])

	// A second order left unpaid is expired by the worker and its seat
	// becomes bookable again.
	second := postJSON(t, "/v1/orders", uuid.New().String(), map[string]interface{}{
		"showtime_id":    showtimeID,
		"seat_ids":       seatIDs[2:],
		"user_id":        42,
		"payment_method": "card",
	}, http.StatusCreated)
	secondID := int64(second["id"].(float64))

	require.Eventually(t, func() bool {
		got := getJSON(t, "/v1/orders/"+itoa(secondID), http.StatusOK)
		return got["status"] == "EXPIRED"
	}, 30*time.Second, 500*time.Millisecond)

	// Paying the expired order is refused.
	postJSON(t, "/v1/orders/"+itoa(secondID)+"/status", "", map[string]interface{}{
		"status": "PAID",
	}, http.StatusUnprocessableEntity)

	postJSON(t, "/v1/orders", uuid.New().String(), map[string]interface{}{
		"showtime_id":    showtimeID,
		"seat_ids":       seatIDs[2:],
		"user_id":        44,
		"payment_method": "card",
	}, http.StatusCreated)
}

func postJSON(t *testing.T, path, idempotencyKey string, body interface{}, wantStatus int) map[string]interface{} {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	require.Equal(t, wantStatus, resp.StatusCode, "POST %s: %v", path, decoded)
	return decoded
}

func getJSON(t *testing.T, path string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(baseURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	require.Equal(t, wantStatus, resp.StatusCode, "GET %s: %v", path, decoded)
	return decoded
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cinebook/booking/internal/adapters/crdb"
	mongoadapter "github.com/cinebook/booking/internal/adapters/mongo"
	"github.com/cinebook/booking/internal/adapters/rabbit"
	redisadapter "github.com/cinebook/booking/internal/adapters/redis"
	"github.com/cinebook/booking/internal/booking"
	"github.com/cinebook/booking/internal/config"
	"github.com/cinebook/booking/internal/expiry"
	"github.com/cinebook/booking/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PGDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("cinebook")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	delayQueue, err := rabbit.NewDelayQueue(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create delay queue: %v", err)
	}
	consumer, err := rabbit.NewConsumer(rabbitConn, rabbit.ExpiryDueQueue)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	svc := booking.NewService(repo, catalog, cache, delayQueue, audit, logger, cfg.OrderTTL)
	worker := expiry.NewWorker(consumer, repo, svc, logger, cfg.SweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("expiry worker stopped", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

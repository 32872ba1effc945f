package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PGDSN         string
	MongoURI      string
	RedisAddr     string
	RabbitURL     string
	HTTPAddr      string
	OrderTTL      time.Duration
	SweepInterval time.Duration
	OTLPEndpoint  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	orderTTL, _ := time.ParseDuration(os.Getenv("ORDER_TTL"))
	if orderTTL == 0 {
		orderTTL = 2 * time.Minute
	}

	sweep, _ := time.ParseDuration(os.Getenv("EXPIRY_SWEEP_INTERVAL"))
	if sweep == 0 {
		sweep = 30 * time.Second
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	return &Config{
		PGDSN:         os.Getenv("PG_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		HTTPAddr:      httpAddr,
		OrderTTL:      orderTTL,
		SweepInterval: sweep,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CourierChat/config"
	"github.com/BearBump/CourierChat/internal/broker/kafka"
	"github.com/BearBump/CourierChat/internal/broker/rooms"
	"github.com/BearBump/CourierChat/internal/cache/redistrack"
	"github.com/BearBump/CourierChat/internal/services/chat"
	"github.com/BearBump/CourierChat/internal/services/locations"
	"github.com/BearBump/CourierChat/internal/storage/pgchat"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Relay.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Relay.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "relay-api"
	}
	topic := cfg.Kafka.RiderLocationTopicName
	if topic == "" {
		topic = "rider.location"
	}
	liveTTL := time.Duration(cfg.Relay.LiveTTLSeconds) * time.Second
	if liveTTL <= 0 {
		liveTTL = 15 * time.Minute
	}
	pingLimit := int64(cfg.Relay.PingRateLimitPerMinute)
	if pingLimit <= 0 {
		pingLimit = 120
	}
	keepalive := time.Duration(cfg.Relay.StreamKeepaliveSeconds) * time.Second

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	trackStore := redistrack.New(redisAddr, liveTTL)
	limiter := redistrack.NewRateLimiter(redisAddr)

	broker := rooms.New(cfg.Relay.RoomBufferSize)

	chatSvc := chat.New(st, broker, cfg.Relay.ChatHistoryLimit)
	locSvc := locations.New(trackStore, broker, limiter, pingLimit, time.Minute)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	swaggerPath := os.Getenv("swaggerPath")
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runRelayAPI(ctx, relayAPIOpts{
		httpAddr:        httpAddr,
		swaggerPath:     swaggerPath,
		topic:           topic,
		consumerGroup:   consumerGroup,
		streamKeepalive: keepalive,
	}, chatSvc, locSvc, broker, producer, consumer); err != nil && err != context.Canceled {
		panic(err)
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgchat.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgchat.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

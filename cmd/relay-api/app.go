package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/BearBump/CourierChat/internal/api/chatapi"
	"github.com/BearBump/CourierChat/internal/broker/messages"
	"github.com/BearBump/CourierChat/internal/broker/rooms"
	"github.com/BearBump/CourierChat/internal/services/chat"
	"github.com/BearBump/CourierChat/internal/services/locations"
)

type relayAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic           string
	consumerGroup   string
	streamKeepalive time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runRelayAPI(ctx context.Context, opts relayAPIOpts, chatSvc *chat.Service, locSvc *locations.Service, broker *rooms.Broker, producer chatapi.PingProducer, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return errors.New("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return errors.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	stream := chatapi.NewStreamHandler(broker, opts.streamKeepalive)
	api := chatapi.New(chatSvc, locSvc, stream, producer, opts.topic)

	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}

	if opts.onListen != nil {
		opts.onListen(httpLis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, httpLis, api, opts.swaggerPath)
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			var ping messages.RiderLocationPing
			if err := json.Unmarshal(value, &ping); err != nil {
				slog.Warn("malformed location ping dropped", "error", err)
				return nil
			}
			locSvc.HandlePing(ctx, ping)
			return nil
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, api *chatapi.ChatAPI, swaggerPath string) error {
	r := chi.NewRouter()
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})

	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Mount("/", api.Routes())

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

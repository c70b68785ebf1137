package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/CourierChat/internal/broker/messages"
	"github.com/BearBump/CourierChat/internal/broker/rooms"
	"github.com/BearBump/CourierChat/internal/cache/redistrack"
	"github.com/BearBump/CourierChat/internal/models"
	"github.com/BearBump/CourierChat/internal/services/chat"
	"github.com/BearBump/CourierChat/internal/services/locations"
	"github.com/BearBump/CourierChat/internal/storage/pgchat"
)

type fakeRepo struct{}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	return nil, pgchat.ErrNotFound
}
func (r *fakeRepo) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	return nil, pgchat.ErrNotFound
}
func (r *fakeRepo) GetOrCreateChannel(ctx context.Context, o *models.Order) (*models.ChatChannel, error) {
	return &models.ChatChannel{}, nil
}
func (r *fakeRepo) ListMessages(ctx context.Context, channelID uint64, limit, offset int) ([]*models.ChatMessage, error) {
	return []*models.ChatMessage{}, nil
}
func (r *fakeRepo) AppendMessage(ctx context.Context, channelID uint64, sender models.Role, body string) (*models.ChatMessage, error) {
	return &models.ChatMessage{}, nil
}

type fakeConsumer struct {
	deliver [][]byte
}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, v := range c.deliver {
		_ = handler(nil, v)
	}
	<-ctx.Done()
	return ctx.Err()
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func TestRunRelayAPI_SwaggerPathRequired(t *testing.T) {
	chatSvc := chat.New(&fakeRepo{}, nil, 0)

	err := runRelayAPI(context.Background(), relayAPIOpts{}, chatSvc, nil, nil, nil, fakeConsumer{})
	require.Error(t, err)

	err = runRelayAPI(context.Background(), relayAPIOpts{swaggerPath: "/no/such/file.json"}, chatSvc, nil, nil, nil, fakeConsumer{})
	require.Error(t, err)
}

func TestRunRelayAPI_SwaggerAndRoutesServed(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redistrack.New(mr.Addr(), 15*time.Minute)

	broker := rooms.New(8)
	chatSvc := chat.New(&fakeRepo{}, broker, 0)
	locSvc := locations.New(store, broker, nil, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := relayAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   writeSwagger(t),
		topic:         "rider.location",
		consumerGroup: "relay-api",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runRelayAPI(ctx, opts, chatSvc, locSvc, broker, nil, fakeConsumer{})
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	// Шлюз смонтирован: неизвестный заказ — единый 404.
	resp, err = http.Get("http://" + httpAddr + "/orders/1/chat")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 404, resp.StatusCode)

	cancel()
	require.Error(t, <-errCh)
}

func TestRunRelayAPI_ConsumerAppliesPings(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redistrack.New(mr.Addr(), 15*time.Minute)

	broker := rooms.New(8)
	chatSvc := chat.New(&fakeRepo{}, broker, 0)
	locSvc := locations.New(store, broker, nil, 0, 0)

	ping, err := json.Marshal(messages.RiderLocationPing{
		RiderID: 9, Lat: 40.71, Lng: -74.0, Online: true, PingedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	// Битый payload молча дропается, валидный применяется.
	cons := fakeConsumer{deliver: [][]byte{[]byte("{nope"), ping}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := relayAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   writeSwagger(t),
		topic:         "rider.location",
		consumerGroup: "relay-api",
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runRelayAPI(ctx, opts, chatSvc, locSvc, broker, nil, cons)
	}()

	require.Eventually(t, func() bool {
		st, found, err := store.GetRiderState(context.Background(), 9)
		return err == nil && found && st.Online
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Error(t, <-errCh)
}

package chatapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BearBump/CourierChat/internal/broker/rooms"
)

// StreamHandler отдаёт события комнаты по SSE. Имя комнаты — durable id
// заказа или его код, оба валидны. Подписка живёт ровно столько, сколько
// соединение: отвалился — отписали, историю доберёт полным fetch'ем.
type StreamHandler struct {
	broker    *rooms.Broker
	keepalive time.Duration
}

func NewStreamHandler(broker *rooms.Broker, keepalive time.Duration) *StreamHandler {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &StreamHandler{broker: broker, keepalive: keepalive}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if room == "" {
		writeError(w, http.StatusBadRequest, "room is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subID := uuid.New().String()
	ch := h.broker.Subscribe(subID, room)
	defer h.broker.Unsubscribe(subID, room)

	slog.Info("room subscriber connected", "room", room, "subscriber_id", subID)

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("room subscriber disconnected", "room", room, "subscriber_id", subID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\n", ev.Type)
			fmt.Fprintf(w, "data: %s\n\n", ev.Data)
			flusher.Flush()
		}
	}
}

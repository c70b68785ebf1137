package chatapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/CourierChat/internal/broker/messages"
	"github.com/BearBump/CourierChat/internal/models"
	"github.com/BearBump/CourierChat/internal/services/chat"
	"github.com/BearBump/CourierChat/internal/services/locations"
)

// PingProducer — путь высокочастотных пингов в топик rider.location.
type PingProducer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// ChatAPI — HTTP-шлюз ретранслятора. Личность и роль приходят в
// заголовках X-Actor-Id / X-Actor-Role от внешнего edge-а, который уже
// провёл аутентификацию; здесь им доверяем.
type ChatAPI struct {
	chat      *chat.Service
	locations *locations.Service
	stream    *StreamHandler

	producer  PingProducer
	pingTopic string
}

func New(chatSvc *chat.Service, locSvc *locations.Service, stream *StreamHandler, producer PingProducer, pingTopic string) *ChatAPI {
	return &ChatAPI{
		chat:      chatSvc,
		locations: locSvc,
		stream:    stream,
		producer:  producer,
		pingTopic: pingTopic,
	}
}

func (a *ChatAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/orders/{key}/chat", a.getChat)
	r.Post("/orders/{key}/chat/messages", a.postChatMessage)
	r.Get("/rooms/{room}/stream", a.stream.ServeHTTP)
	r.Post("/riders/{riderID}/location", a.postRiderLocation)

	// Внутренние хуки для CRUD-приложения (общая база, отдельный деплой).
	r.Post("/internal/orders/{orderID}/tracking", a.openTracking)
	r.Delete("/internal/orders/{orderID}/tracking", a.closeTracking)
	r.Get("/internal/orders/{orderID}/tracking", a.getTracking)
	return r
}

func (a *ChatAPI) getChat(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(r)
	if !ok {
		// На GET все отказы схлопываем в 404, чтобы не палить заказы.
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	view, err := a.chat.ChannelForViewer(r.Context(), chi.URLParam(r, "key"), actorID, role)
	if errors.Is(err, chat.ErrDenied) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		slog.Error("get chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type postMessageRequest struct {
	Body string `json:"body"`
}

func (a *ChatAPI) postChatMessage(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(r)
	if !ok {
		writeError(w, http.StatusForbidden, "cannot send")
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	posted, err := a.chat.PostMessage(r.Context(), chi.URLParam(r, "key"), role, actorID, req.Body)
	if errors.Is(err, chat.ErrEmptyBody) {
		writeError(w, http.StatusBadRequest, "message body is empty")
		return
	}
	if errors.Is(err, chat.ErrDenied) {
		writeError(w, http.StatusForbidden, "cannot send")
		return
	}
	if err != nil {
		slog.Error("post chat message failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": posted})
}

type riderLocationRequest struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Online bool    `json:"online"`
}

// postRiderLocation кладёт пинг в топик; если kafka недоступна,
// применяем пинг прямо здесь. Медиум best-effort, ответ всегда 202.
func (a *ChatAPI) postRiderLocation(w http.ResponseWriter, r *http.Request) {
	riderID, err := strconv.ParseUint(chi.URLParam(r, "riderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rider id")
		return
	}
	var req riderLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	ping := messages.RiderLocationPing{
		RiderID:  riderID,
		Lat:      req.Lat,
		Lng:      req.Lng,
		Online:   req.Online,
		PingedAt: time.Now().UTC(),
	}

	published := false
	if a.producer != nil {
		value, _ := json.Marshal(ping)
		key := []byte(strconv.FormatUint(riderID, 10))
		if err := a.producer.Publish(r.Context(), a.pingTopic, key, value); err != nil {
			slog.Warn("ping publish failed, applying inline", "rider_id", riderID, "error", err)
		} else {
			published = true
		}
	}
	if !published {
		a.locations.HandlePing(r.Context(), ping)
	}
	w.WriteHeader(http.StatusAccepted)
}

type openTrackingRequest struct {
	OrderCode  string                    `json:"order_code"`
	PickupLat  float64                   `json:"pickup_lat"`
	PickupLng  float64                   `json:"pickup_lng"`
	Assignment models.TrackingAssignment `json:"assignment"`
}

func (a *ChatAPI) openTracking(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req openTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Assignment.RiderID == 0 {
		writeError(w, http.StatusBadRequest, "assignment.rider_id is required")
		return
	}

	a.locations.OpenTracking(r.Context(), locations.OpenTrackingInput{
		OrderID:    orderID,
		OrderCode:  req.OrderCode,
		PickupLat:  req.PickupLat,
		PickupLng:  req.PickupLng,
		Assignment: req.Assignment,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *ChatAPI) closeTracking(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	a.locations.CloseTracking(r.Context(), orderID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *ChatAPI) getTracking(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	track, found := a.locations.OrderTracking(r.Context(), orderID)
	if !found {
		writeError(w, http.StatusNotFound, "no tracking")
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func actor(r *http.Request) (uint64, models.Role, bool) {
	id, err := strconv.ParseUint(r.Header.Get("X-Actor-Id"), 10, 64)
	if err != nil || id == 0 {
		return 0, "", false
	}
	role, ok := models.ParseRole(r.Header.Get("X-Actor-Role"))
	if !ok {
		return 0, "", false
	}
	return id, role, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

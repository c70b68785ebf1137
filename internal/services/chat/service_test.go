package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/CourierChat/internal/broker/messages"
	"github.com/BearBump/CourierChat/internal/broker/rooms"
	"github.com/BearBump/CourierChat/internal/models"
	"github.com/BearBump/CourierChat/internal/storage/pgchat"
)

type fakeRepo struct {
	orders map[uint64]*models.Order
	byCode map[string]*models.Order

	channels  map[uint64]*models.ChatChannel
	msgs      map[uint64][]*models.ChatMessage
	nextChID  uint64
	nextMsgID uint64

	appendErr error
}

func newFakeRepo(orders ...*models.Order) *fakeRepo {
	r := &fakeRepo{
		orders:   map[uint64]*models.Order{},
		byCode:   map[string]*models.Order{},
		channels: map[uint64]*models.ChatChannel{},
		msgs:     map[uint64][]*models.ChatMessage{},
	}
	for _, o := range orders {
		r.orders[o.ID] = o
		r.byCode[o.Code] = o
	}
	return r
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, pgchat.ErrNotFound
	}
	return o, nil
}

func (r *fakeRepo) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	o, ok := r.byCode[code]
	if !ok {
		return nil, pgchat.ErrNotFound
	}
	return o, nil
}

func (r *fakeRepo) GetOrCreateChannel(ctx context.Context, o *models.Order) (*models.ChatChannel, error) {
	if ch, ok := r.channels[o.ID]; ok {
		return ch, nil
	}
	r.nextChID++
	ch := &models.ChatChannel{
		ID:         r.nextChID,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		RiderID:    o.RiderID,
		IsActive:   true,
	}
	r.channels[o.ID] = ch
	return ch, nil
}

func (r *fakeRepo) ListMessages(ctx context.Context, channelID uint64, limit, offset int) ([]*models.ChatMessage, error) {
	return r.msgs[channelID], nil
}

func (r *fakeRepo) AppendMessage(ctx context.Context, channelID uint64, sender models.Role, body string) (*models.ChatMessage, error) {
	if r.appendErr != nil {
		return nil, r.appendErr
	}
	r.nextMsgID++
	m := &models.ChatMessage{
		ID:        r.nextMsgID,
		ChannelID: channelID,
		Sender:    sender,
		Body:      body,
		SentAt:    time.Now().UTC(),
	}
	r.msgs[channelID] = append(r.msgs[channelID], m)
	return m, nil
}

func riderPtr(id uint64) *uint64 { return &id }

func activeOrder() *models.Order {
	return &models.Order{
		ID:         42,
		Code:       "ORD-7421",
		Status:     models.OrderStatusConfirmed,
		CustomerID: 5,
		RiderID:    riderPtr(9),
	}
}

func TestService_PostMessage_EmptyBody(t *testing.T) {
	r := newFakeRepo(activeOrder())
	s := New(r, nil, 0)

	_, err := s.PostMessage(context.Background(), "42", models.RoleCustomer, 5, "   \n\t ")
	require.ErrorIs(t, err, ErrEmptyBody)
	// Валидация отсекает до похода в стор.
	require.Empty(t, r.channels)
}

func TestService_PostMessage_UniformDenial(t *testing.T) {
	r := newFakeRepo(activeOrder())
	s := New(r, nil, 0)
	ctx := context.Background()

	// Нет такого заказа.
	_, err := s.PostMessage(ctx, "999", models.RoleCustomer, 5, "hi")
	require.ErrorIs(t, err, ErrDenied)

	// Чужой customer.
	_, err = s.PostMessage(ctx, "42", models.RoleCustomer, 6, "hi")
	require.ErrorIs(t, err, ErrDenied)

	// Не тот курьер.
	_, err = s.PostMessage(ctx, "42", models.RoleRider, 7, "hi")
	require.ErrorIs(t, err, ErrDenied)

	require.Empty(t, r.msgs)
}

func TestService_PostMessage_RiderNeverAssigned(t *testing.T) {
	o := activeOrder()
	o.RiderID = nil
	s := New(newFakeRepo(o), nil, 0)

	_, err := s.PostMessage(context.Background(), "42", models.RoleRider, 9, "on my way")
	require.ErrorIs(t, err, ErrDenied)
}

func TestService_PostMessage_ChatClosedAfterWindow(t *testing.T) {
	o := activeOrder()
	o.Status = models.OrderStatusDelivered
	deliveredAt := time.Now().UTC().Add(-1 * time.Hour)
	o.DeliveredAt = &deliveredAt

	r := newFakeRepo(o)
	s := New(r, nil, 0)

	_, err := s.PostMessage(context.Background(), "42", models.RoleCustomer, 5, "hello?")
	require.ErrorIs(t, err, ErrDenied)
	require.Empty(t, r.msgs)
}

func TestService_PostMessage_AppendsAndReturnsBothKeys(t *testing.T) {
	r := newFakeRepo(activeOrder())
	s := New(r, nil, 0)

	posted, err := s.PostMessage(context.Background(), "ORD-7421", models.RoleCustomer, 5, "  Where is my order?  ")
	require.NoError(t, err)
	require.Equal(t, uint64(42), posted.OrderID)
	require.Equal(t, "ORD-7421", posted.OrderCode)
	require.Equal(t, "customer", posted.Sender)
	require.Equal(t, "Where is my order?", posted.Body)
	require.False(t, posted.SentAt.IsZero())
	require.Len(t, r.msgs[1], 1)
}

func TestService_PostMessage_FanOutBothRooms(t *testing.T) {
	r := newFakeRepo(activeOrder())
	b := rooms.New(4)
	s := New(r, b, 0)

	byID := b.Subscribe("sub-id", "42")
	byCode := b.Subscribe("sub-code", "ORD-7421")

	_, err := s.PostMessage(context.Background(), "42", models.RoleRider, 9, "5 minutes away")
	require.NoError(t, err)

	for _, ch := range []<-chan rooms.Event{byID, byCode} {
		select {
		case ev := <-ch:
			require.Equal(t, rooms.EventChatMessage, ev.Type)
			var posted messages.ChatMessagePosted
			require.NoError(t, json.Unmarshal(ev.Data, &posted))
			require.Equal(t, "rider", posted.Sender)
			require.Equal(t, "5 minutes away", posted.Body)
		default:
			t.Fatal("expected event in room")
		}
	}
}

func TestService_PostMessage_AppendErrorSurfaces(t *testing.T) {
	r := newFakeRepo(activeOrder())
	r.appendErr = pgchat.ErrNotFound // любой store error должен всплыть
	s := New(r, nil, 0)

	_, err := s.PostMessage(context.Background(), "42", models.RoleCustomer, 5, "hi")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDenied)
}

func TestService_ChannelForViewer_HistoryVisibleWhenClosed(t *testing.T) {
	o := activeOrder()
	r := newFakeRepo(o)
	s := New(r, nil, 0)
	ctx := context.Background()

	_, err := s.PostMessage(ctx, "42", models.RoleCustomer, 5, "Where is my order?")
	require.NoError(t, err)

	// Заказ доставлен час назад — чат закрыт, история остаётся.
	o.Status = models.OrderStatusDelivered
	deliveredAt := time.Now().UTC().Add(-1 * time.Hour)
	o.DeliveredAt = &deliveredAt

	view, err := s.ChannelForViewer(ctx, "42", 5, models.RoleCustomer)
	require.NoError(t, err)
	require.False(t, view.Allowed)
	require.Len(t, view.Messages, 1)
	require.Equal(t, "Where is my order?", view.Messages[0].Body)
}

func TestService_ChannelForViewer_Denials(t *testing.T) {
	s := New(newFakeRepo(activeOrder()), nil, 0)
	ctx := context.Background()

	_, err := s.ChannelForViewer(ctx, "404", 5, models.RoleCustomer)
	require.ErrorIs(t, err, ErrDenied)

	_, err = s.ChannelForViewer(ctx, "42", 6, models.RoleCustomer)
	require.ErrorIs(t, err, ErrDenied)

	_, err = s.ChannelForViewer(ctx, "42", 7, models.RoleRider)
	require.ErrorIs(t, err, ErrDenied)
}

func TestService_ResolveOrder_NumericCodeFallsBack(t *testing.T) {
	// Числовой код заказа, который не совпадает ни с одним durable id.
	o := activeOrder()
	o.Code = "7421"
	s := New(newFakeRepo(o), nil, 0)

	view, err := s.ChannelForViewer(context.Background(), "7421", 5, models.RoleCustomer)
	require.NoError(t, err)
	require.Equal(t, uint64(42), view.Order.ID)
}

func TestService_EndToEnd_CustomerAndRider(t *testing.T) {
	r := newFakeRepo(activeOrder())
	b := rooms.New(4)
	s := New(r, b, 0)
	ctx := context.Background()

	// Покупатель пишет первым.
	posted, err := s.PostMessage(ctx, "42", models.RoleCustomer, 5, "Where is my order?")
	require.NoError(t, err)
	require.Equal(t, "customer", posted.Sender)

	// Курьер открывает канал и видит сообщение, чат открыт.
	view, err := s.ChannelForViewer(ctx, "ORD-7421", 9, models.RoleRider)
	require.NoError(t, err)
	require.True(t, view.Allowed)
	require.Len(t, view.Messages, 1)

	// Покупатель подписан на комнату; ответ курьера долетает событием.
	sub := b.Subscribe("customer-conn", "42")
	_, err = s.PostMessage(ctx, "42", models.RoleRider, 9, "5 minutes away")
	require.NoError(t, err)

	ev := <-sub
	require.Equal(t, rooms.EventChatMessage, ev.Type)
	var got messages.ChatMessagePosted
	require.NoError(t, json.Unmarshal(ev.Data, &got))
	require.Equal(t, "rider", got.Sender)
	require.Equal(t, "5 minutes away", got.Body)
}

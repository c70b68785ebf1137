package rooms

import (
	"sync"
)

// Event types delivered to room subscribers.
const (
	EventChatMessage   = "chat_message"
	EventRiderPosition = "rider_position"
)

type Event struct {
	Type string
	Data []byte
}

// Broker — внутрипроцессный pub/sub по имени комнаты. Одна комната на
// идентификатор заказа, вторая на его человекочитаемый код; подписчик с
// любым из них получает одни и те же события. Доставка только "кто
// подключён в момент publish": ни буфера для отключившихся, ни повтора —
// историю они добирают из durable-стора полным fetch'ем.
//
// Комнаты независимы, общий lock только на реестр. Канал подписчика
// буферизован; если подписчик не успевает, событие молча выбрасывается.
type Broker struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]chan Event
	buffer int
}

func New(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		rooms:  make(map[string]map[string]chan Event),
		buffer: buffer,
	}
}

// Subscribe идемпотентен: повторная подписка того же subID на ту же
// комнату возвращает уже существующий канал.
func (b *Broker) Subscribe(subID, room string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.rooms[room]
	if !ok {
		subs = make(map[string]chan Event)
		b.rooms[room] = subs
	}
	if ch, ok := subs[subID]; ok {
		return ch
	}
	ch := make(chan Event, b.buffer)
	subs[subID] = ch
	return ch
}

func (b *Broker) Unsubscribe(subID, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.rooms[room]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.rooms, room)
	}
}

// Publish раздаёт событие всем, кто подписан на комнату сейчас.
// Неблокирующая отправка: переполненный канал — это dropped, а не ошибка.
// Ошибок наружу нет вообще, publisher на подписчиков не оглядывается.
func (b *Broker) Publish(room string, ev Event) (delivered, dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.rooms[room] {
		select {
		case ch <- ev:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

// RoomCount нужен только для логов и тестов.
func (b *Broker) RoomCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}

package bus

import (
	"log"
	"sync"
	"time"
)

type Kind string

const (
	// KindTimerEnded fires once when a running countdown reaches zero.
	KindTimerEnded Kind = "timer.ended"
)

type Event struct {
	Kind  Kind
	Label string

	// Generation identifies the countdown that produced the event.
	Generation uint64
	Timestamp  time.Time
}

// Bus fans events out to subscribers synchronously, in subscription order.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[Kind][]subscriber
}

type subscriber struct {
	id int
	fn func(Event)
}

func New() *Bus {
	return &Bus{subs: make(map[Kind][]subscriber)}
}

// Subscribe registers fn for kind and returns a function that removes it.
func (b *Bus) Subscribe(kind Kind, fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[kind] = append(b.subs[kind], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[kind]
			for i, s := range list {
				if s.id == id {
					b.subs[kind] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber of its kind. A nil Bus drops the
// event. A panicking subscriber is logged and does not stop delivery.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[ev.Kind]...)
	b.mu.RUnlock()

	for _, s := range list {
		deliver(s.fn, ev)
	}
}

func deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] %s subscriber panic: %v", ev.Kind, r)
		}
	}()
	fn(ev)
}

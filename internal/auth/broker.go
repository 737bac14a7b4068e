package auth

import (
	"sync"
	"time"
)

// Notice is an auth change as seen inside the server process. Subject is one of the
// events.SubjectRegistered / SubjectSignedIn / SubjectSignedOut names.
type Notice struct {
	Subject  string
	UserID   string
	Email    string
	Username string
	At       time.Time
}

// Broker fans notices out to in-process subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the notice.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]chan Notice
	next int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Notice)}
}

// Subscribe registers a buffered channel. The returned func unsubscribes and closes
// the channel; calling it more than once is harmless.
func (b *Broker) Subscribe(buf int) (<-chan Notice, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Notice, buf)
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers n to every subscriber with room and returns how many missed it.
func (b *Broker) Publish(n Notice) (missed int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			missed++
		}
	}
	return missed
}

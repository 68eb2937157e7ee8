package game

import (
	"sync"

	"board_sync/internal/domain/game"
)

// Broadcaster fans domain events out to subscribers. Subscribers run on
// the publishing goroutine and must not block.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(game.Event)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(game.Event))}
}

func (b *Broadcaster) Subscribe(fn func(game.Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Broadcaster) Publish(ev game.Event) {
	b.mu.RLock()
	subs := make([]func(game.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a small in-memory signal used to decouple the relay from its observers
// (metrics, health, scheduled reports).
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a slow subscriber drops events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Event types published by the relay and the channel provisioner.
const (
	TypeDelivered        = "relay.delivered"
	TypeSkipped          = "relay.skipped"
	TypeBlocked          = "relay.blocked"
	TypeFailed           = "relay.failed"
	TypeChannelRepaired  = "channels.repaired"
	TypeChannelCreated   = "channels.created"
	TypeCommandProcessed = "commands.processed"
)

// Delivery is the Data of every relay.* event.
type Delivery struct {
	ID        string
	GuildID   string
	EventType string
	Mode      string // "inline" | "attachment" for delivered events
	Reason    string // skip/block/failure reason
	Missing   []string
	Duration  time.Duration
}

// Channel is the Data of channels.* events.
type Channel struct {
	GuildID   string
	ChannelID string
}

// Command is the Data of commands.processed.
type Command struct {
	Name string
	OK   bool
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock, so unsubscribe (write lock) cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Nop is a Bus that drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

// Package session tracks the live client connections of each account and
// pushes events to them without ever blocking the caller.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

// DefaultSendTimeout bounds a single delivery attempt to one channel.
const DefaultSendTimeout = 250 * time.Millisecond

// outboxSize is how many events may wait for one channel before it counts as
// stuck and is dropped.
const outboxSize = 64

// Channel is one live outbound connection. Send may fail; a failed channel is
// dropped and closed. Implementations are used as map keys and must be
// comparable.
type Channel interface {
	Send(ctx context.Context, payload []byte) error
	Close()
}

// outbox feeds one channel from a single goroutine, so the channel sees
// events in the order Notify accepted them.
type outbox struct {
	ch    Channel
	queue chan []byte
	quit  chan struct{}
	once  sync.Once
}

func (o *outbox) stop() {
	o.once.Do(func() { close(o.quit) })
}

// Registry maps account ids to their live channels. Notify only queues; the
// per-channel goroutines do the sending, so a slow delivery never holds the
// lock that Register and Unregister need.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Channel]*outbox
	timeout  time.Duration
	log      *slog.Logger
	wg       sync.WaitGroup
}

func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		channels: make(map[string]map[Channel]*outbox),
		timeout:  timeout,
		log:      logger,
	}
}

// Register adds the channel. Registering it twice is a no-op.
func (r *Registry) Register(accountID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channels[accountID]
	if !ok {
		set = make(map[Channel]*outbox)
		r.channels[accountID] = set
	}
	if _, ok := set[ch]; ok {
		return
	}
	ob := &outbox{ch: ch, queue: make(chan []byte, outboxSize), quit: make(chan struct{})}
	set[ch] = ob
	go r.run(accountID, ob)
}

// Unregister removes the channel without closing it. Removing an unknown
// channel is a no-op.
func (r *Registry) Unregister(accountID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.channels[accountID]
	if !ok {
		return
	}
	if ob, ok := set[ch]; ok {
		ob.stop()
		delete(set, ch)
	}
	if len(set) == 0 {
		delete(r.channels, accountID)
	}
}

// Count returns how many channels are registered for the account.
func (r *Registry) Count(accountID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[accountID])
}

// Notify queues event for every channel of the account and returns
// immediately. A channel whose queue is full, or whose delivery fails or
// times out, is dropped and closed.
func (r *Registry) Notify(accountID string, event domain.Event) {
	if r.Count(accountID) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error("Failed to encode event", "account_id", accountID, "error", err)
		return
	}

	var stuck []Channel
	r.mu.RLock()
	for ch, ob := range r.channels[accountID] {
		r.wg.Add(1)
		select {
		case ob.queue <- payload:
		default:
			r.wg.Done()
			stuck = append(stuck, ch)
		}
	}
	r.mu.RUnlock()

	for _, ch := range stuck {
		r.drop(accountID, ch, "outbox full")
	}
}

// Wait blocks until every queued delivery has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Close drops and closes every channel. Queued events are discarded.
func (r *Registry) Close() {
	r.mu.Lock()
	var all []*outbox
	for id, set := range r.channels {
		for _, ob := range set {
			ob.stop()
			all = append(all, ob)
		}
		delete(r.channels, id)
	}
	r.mu.Unlock()

	for _, ob := range all {
		ob.ch.Close()
	}
}

func (r *Registry) run(accountID string, ob *outbox) {
	for {
		select {
		case payload := <-ob.queue:
			r.deliver(accountID, ob.ch, payload)
			r.wg.Done()
		case <-ob.quit:
			// Nothing is queued after quit: Notify only enqueues to
			// registered outboxes while holding the read lock.
			for {
				select {
				case <-ob.queue:
					r.wg.Done()
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) deliver(accountID string, ch Channel, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := ch.Send(ctx, payload); err != nil {
		r.drop(accountID, ch, err.Error())
	}
}

func (r *Registry) drop(accountID string, ch Channel, reason string) {
	r.log.Warn("Dropping session", "account_id", accountID, "reason", reason)
	r.Unregister(accountID, ch)
	ch.Close()
}

package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is the ordered, durable message log. It is mirrored to a
// Slot after every mutation and restored from it at startup.
type Conversation struct {
	mu       sync.RWMutex
	slot     Slot
	key      string
	messages []Message
	subs     []chan struct{}
	now      func() time.Time
}

// NewConversation creates an empty log persisted under key in slot.
func NewConversation(slot Slot, key string) *Conversation {
	return &Conversation{
		slot: slot,
		key:  key,
		now:  time.Now,
	}
}

// Restore replaces the in-memory log with the persisted one and returns the
// number of messages restored. A missing or malformed slot leaves the log
// empty; the error is logged, never returned.
func (c *Conversation) Restore(ctx context.Context) int {
	data, err := c.slot.Load(ctx, c.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Failed to read conversation slot", "key", c.key, "error", err)
		}
		c.replace(nil)
		return 0
	}

	msgs, err := DecodeLog(data)
	if err != nil {
		slog.Warn("Discarding malformed conversation log", "key", c.key, "error", err)
		c.replace(nil)
		return 0
	}

	c.replace(msgs)
	slog.Info("Restored conversation", "key", c.key, "count", len(msgs))
	return len(msgs)
}

// Append adds msg to the end of the log and persists the full log before
// returning. Persistence failures are logged; the in-memory log stays
// authoritative. The stored copy (with ID and timestamp filled in) is returned.
func (c *Conversation) Append(ctx context.Context, msg Message) Message {
	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.now()
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.notify()
	return msg.Clone()
}

// Snapshot returns a copy of the full log, oldest first. Mutating the
// result does not affect the store.
func (c *Conversation) Snapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copied := make([]Message, len(c.messages))
	for i, m := range c.messages {
		copied[i] = m.Clone()
	}
	return copied
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Subscribe returns a channel that receives a value whenever the log
// changes. Notifications are coalesced: a slow reader sees at least one
// signal after the latest change.
func (c *Conversation) Subscribe() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{}, 1)
	c.subs = append(c.subs, ch)
	return ch
}

func (c *Conversation) replace(msgs []Message) {
	c.mu.Lock()
	c.messages = msgs
	c.mu.Unlock()
	c.notify()
}

func (c *Conversation) persistLocked(ctx context.Context) {
	data, err := EncodeLog(c.messages)
	if err != nil {
		slog.Error("Failed to encode conversation", "error", err)
		return
	}
	if err := c.slot.Save(ctx, c.key, data); err != nil {
		slog.Error("Failed to persist conversation", "key", c.key, "error", err)
	}
}

func (c *Conversation) notify() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sub := range c.subs {
		// Non-blocking send
		select {
		case sub <- struct{}{}:
		default:
		}
	}
}

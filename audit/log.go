package audit

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/feedmesh/core"
)

// Direction marks which way a message crossed the session boundary.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Entry is a single audited message.
type Entry struct {
	ID         string
	Direction  Direction
	Message    core.Message
	RecordedAt time.Time
}

// Log stores audit entries.
type Log interface {
	// Append records an entry. The entry id is assigned by the caller.
	Append(ctx context.Context, entry Entry) error

	// ByConversation returns all entries for a conversation in recording
	// order.
	ByConversation(ctx context.Context, conversationID string) ([]Entry, error)

	// ByAgent returns all entries sent or received by the given agent in
	// recording order.
	ByAgent(ctx context.Context, agentID string) ([]Entry, error)
}

// InMemoryLog keeps audit entries in process memory, in append order.
type InMemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
}

// Compile-time check that InMemoryLog satisfies Log.
var _ Log = (*InMemoryLog)(nil)

// NewInMemoryLog returns an empty in-memory Log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{}
}

func (l *InMemoryLog) Append(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *InMemoryLog) ByConversation(_ context.Context, conversationID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Message.ConversationID == conversationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *InMemoryLog) ByAgent(_ context.Context, agentID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Message.FromAgent == agentID || e.Message.ToAgent == agentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the number of recorded entries.
func (l *InMemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/fetchvault/ports"
)

// EventMarker is an in-memory first-claim-wins event dedup marker.
type EventMarker struct {
	mu     sync.Mutex
	claims map[string]time.Time // event id → expiry
	clock  ports.Clock
}

// NewEventMarker creates a new in-memory event marker.
func NewEventMarker(clock ports.Clock) *EventMarker {
	if clock == nil {
		clock = realClock{}
	}
	return &EventMarker{
		claims: make(map[string]time.Time),
		clock:  clock,
	}
}

// Claim records an event id with a TTL. Only the first claim within
// the TTL returns true.
func (m *EventMarker) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if expiry, ok := m.claims[eventID]; ok && now.Before(expiry) {
		return false, nil
	}
	m.claims[eventID] = now.Add(ttl)

	// Opportunistic expiry so the map stays bounded without a ticker.
	if len(m.claims) > 4096 {
		for id, expiry := range m.claims {
			if !now.Before(expiry) {
				delete(m.claims, id)
			}
		}
	}
	return true, nil
}

// Ensure interface compliance.
var _ ports.EventMarker = (*EventMarker)(nil)

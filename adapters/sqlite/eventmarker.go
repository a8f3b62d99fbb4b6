package sqlite

import (
	"context"
	"time"

	"github.com/artpar/fetchvault/ports"
)

// EventMarker implements ports.EventMarker using SQLite.
type EventMarker struct {
	db    *DB
	clock ports.Clock
}

// NewEventMarker creates a new SQLite event marker.
func NewEventMarker(db *DB, clock ports.Clock) *EventMarker {
	return &EventMarker{db: db, clock: clock}
}

// Claim records an event id with a TTL. Only the first claim within
// the TTL returns true. Expired claims are reaped on the way in, so a
// re-delivered event after the TTL counts as new.
func (m *EventMarker) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	now := m.clock.Now().UTC()

	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE expires_at < ?`, now); err != nil {
		return false, err
	}

	result, err := m.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_events (event_id, expires_at)
		VALUES (?, ?)
	`, eventID, now.Add(ttl))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Ensure interface compliance.
var _ ports.EventMarker = (*EventMarker)(nil)

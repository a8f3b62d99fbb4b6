// Package webhook provides value types and pure functions for signed
// outbound batch notifications. Delivery I/O lives in app; signature
// verification is shared with the inbound billing webhook path.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/artpar/fetchvault/domain/batch"
)

// EventType identifies an outbound event.
type EventType string

// The two terminal batch outcomes. There are no other outbound events:
// progress is observed by polling, not pushed.
const (
	EventBatchCompleted EventType = "batch.completed"
	EventBatchFailed    EventType = "batch.failed"
)

// Header names carried alongside the payload.
const (
	HeaderEvent     = "X-Fetchvault-Event"
	HeaderSignature = "X-Fetchvault-Signature"
)

// Data is the event-specific section of the payload.
type Data struct {
	BatchID         string `json:"batch_id"`
	Status          string `json:"status"`
	SuccessfulItems int    `json:"successful_items"`
	FailedItems     int    `json:"failed_items"`
}

// Payload is the fixed outbound wire shape. The signature covers the
// exact serialized bytes, so callers must sign what they send, not a
// re-serialization.
type Payload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      Data   `json:"data"`
}

// EventFor maps a terminal batch status to its event type.
// This is a PURE function.
func EventFor(status batch.Status) (EventType, bool) {
	switch status {
	case batch.StatusCompleted:
		return EventBatchCompleted, true
	case batch.StatusFailed:
		return EventBatchFailed, true
	default:
		return "", false
	}
}

// BuildPayload assembles the payload for a terminal batch.
// This is a PURE function.
func BuildPayload(event EventType, b batch.Batch, now time.Time) Payload {
	completed, failed := batch.CountByStatus(b)
	return Payload{
		Event:     string(event),
		Timestamp: now.UTC().Format(time.RFC3339),
		Data: Data{
			BatchID:         b.ID,
			Status:          string(b.Status),
			SuccessfulItems: completed,
			FailedItems:     failed,
		},
	}
}

// Serialize renders the payload to the exact bytes to sign and send.
// This is a PURE function.
func Serialize(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Sign computes the hex HMAC-SHA256 of the payload bytes.
// This is a PURE function.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
// This is a PURE function.
func Verify(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

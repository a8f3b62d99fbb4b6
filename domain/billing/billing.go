// Package billing provides pure functions for interpreting payment
// provider events. Verification and transport live in adapters/payment;
// this package only decides what a verified event means for a tenant's
// plan.
package billing

import (
	"strings"

	"github.com/artpar/fetchvault/domain/plan"
)

// Event is a verified, provider-neutral billing event (value type).
type Event struct {
	ID         string // provider event id, used for deduplication
	Type       string // provider event type string
	CustomerID string // provider customer id, mapped to a tenant
	PlanMeta   string // plan/tier metadata embedded in the event
}

// Outcome is what an event should do to the tenant's plan (value type).
type Outcome struct {
	Apply bool // false: event is irrelevant to plan state
	Tier  plan.Tier
}

// Interpret maps an event to a plan outcome. Checkout and subscription
// update events move the tenant to the tier named in the plan metadata;
// cancellation-style events revert to the lowest tier; everything else
// is ignored.
// This is a PURE function.
func Interpret(e Event) Outcome {
	t := strings.ToLower(e.Type)

	switch {
	case strings.HasSuffix(t, ".deleted"), strings.Contains(t, "cancel"):
		return Outcome{Apply: true, Tier: plan.Lowest()}
	case strings.Contains(t, "checkout.session.completed"),
		strings.Contains(t, "subscription.created"),
		strings.Contains(t, "subscription.updated"):
		tier, ok := plan.Parse(strings.ToLower(strings.TrimSpace(e.PlanMeta)))
		if !ok {
			return Outcome{}
		}
		return Outcome{Apply: true, Tier: tier}
	default:
		return Outcome{}
	}
}

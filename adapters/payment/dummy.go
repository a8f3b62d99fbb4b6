package payment

import (
	"encoding/json"
	"fmt"

	"github.com/artpar/fetchvault/domain/billing"
	"github.com/artpar/fetchvault/domain/webhook"
	"github.com/artpar/fetchvault/ports"
)

// DummyProvider is a test/demo payment provider. Use it for development
// when real payment credentials aren't available. Webhook payloads are
// plain JSON billing events signed with a shared HMAC secret.
type DummyProvider struct {
	secret string
}

// NewDummyProvider creates a new dummy payment provider.
func NewDummyProvider(secret string) *DummyProvider {
	return &DummyProvider{secret: secret}
}

// Name returns the provider name.
func (p *DummyProvider) Name() string {
	return "dummy"
}

// ParseWebhook verifies the HMAC signature and decodes the event.
func (p *DummyProvider) ParseWebhook(payload []byte, signature string) (billing.Event, error) {
	if !webhook.Verify(payload, signature, p.secret) {
		return billing.Event{}, fmt.Errorf("invalid dummy webhook signature")
	}

	var ev billing.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return billing.Event{}, fmt.Errorf("decode dummy event: %w", err)
	}
	return ev, nil
}

// Ensure interface compliance.
var _ ports.PaymentProvider = (*DummyProvider)(nil)

// Package payment provides payment provider adapters.
package payment

import (
	"encoding/json"
	"fmt"

	"github.com/artpar/fetchvault/domain/billing"
	"github.com/artpar/fetchvault/ports"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeProvider implements ports.PaymentProvider for Stripe.
type StripeProvider struct {
	config StripeConfig
}

// NewStripeProvider creates a new Stripe payment provider.
func NewStripeProvider(config StripeConfig) *StripeProvider {
	stripe.Key = config.SecretKey
	return &StripeProvider{config: config}
}

// Name returns the provider name.
func (p *StripeProvider) Name() string {
	return "stripe"
}

// ParseWebhook validates a Stripe webhook signature and maps the event
// into the provider-neutral billing event. An invalid signature is an
// error; event types we do not subscribe to still parse and are left
// for domain interpretation to ignore.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (billing.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.config.WebhookSecret)
	if err != nil {
		return billing.Event{}, fmt.Errorf("verify stripe webhook: %w", err)
	}

	var data struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
		Metadata struct {
			Plan string `json:"plan"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
		return billing.Event{}, fmt.Errorf("decode stripe event data: %w", err)
	}

	return billing.Event{
		ID:         event.ID,
		Type:       string(event.Type),
		CustomerID: data.Customer,
		PlanMeta:   data.Metadata.Plan,
	}, nil
}

// Ensure interface compliance.
var _ ports.PaymentProvider = (*StripeProvider)(nil)

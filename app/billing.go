package app

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/fetchvault/domain/billing"
	"github.com/artpar/fetchvault/ports"
	"github.com/rs/zerolog"
)

// eventClaimTTL bounds provider event deduplication. An event id
// redelivered after the claim expires is treated as new.
const eventClaimTTL = 24 * time.Hour

// ErrBadSignature is returned for webhooks that fail verification.
var ErrBadSignature = errors.New("webhook signature verification failed")

// BillingService applies payment provider webhooks to tenant tiers.
type BillingService struct {
	provider ports.PaymentProvider
	tenants  ports.TenantStore
	marker   ports.EventMarker
	clock    ports.Clock
	logger   zerolog.Logger
}

// NewBillingService creates a billing webhook handler.
func NewBillingService(provider ports.PaymentProvider, tenants ports.TenantStore, marker ports.EventMarker, clock ports.Clock, logger zerolog.Logger) *BillingService {
	return &BillingService{
		provider: provider,
		tenants:  tenants,
		marker:   marker,
		clock:    clock,
		logger:   logger,
	}
}

// HandleWebhook verifies, deduplicates and applies one provider event.
// Unknown event types and unknown customers are acknowledged without
// effect so the provider stops retrying them.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("provider", s.provider.Name()).
			Msg("billing webhook rejected")
		return ErrBadSignature
	}

	if event.ID != "" {
		fresh, err := s.marker.Claim(ctx, "billing:"+event.ID, eventClaimTTL)
		if err != nil {
			return err
		}
		if !fresh {
			s.logger.Debug().
				Str("event_id", event.ID).
				Msg("duplicate billing event ignored")
			return nil
		}
	}

	outcome := billing.Interpret(event)
	if !outcome.Apply {
		s.logger.Debug().
			Str("event_type", event.Type).
			Msg("billing event ignored")
		return nil
	}

	tenant, err := s.tenants.GetByStripeID(ctx, event.CustomerID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("customer_id", event.CustomerID).
			Msg("billing event for unknown customer")
		return nil
	}

	if tenant.Tier == outcome.Tier {
		return nil
	}

	from := tenant.Tier
	tenant.Tier = outcome.Tier
	tenant.UpdatedAt = s.clock.Now().UTC()
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return err
	}

	s.logger.Info().
		Str("tenant_id", tenant.ID).
		Str("from", string(from)).
		Str("to", string(outcome.Tier)).
		Msg("tenant tier changed")
	return nil
}

// Package app wires the domain packages into services behind the HTTP
// layer. Services hold ports, never concrete adapters.
package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/artpar/fetchvault/adapters/metrics"
	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/domain/idempotency"
	"github.com/artpar/fetchvault/domain/plan"
	"github.com/artpar/fetchvault/domain/ratelimit"
	"github.com/artpar/fetchvault/ports"
	"github.com/rs/zerolog"
)

// SubmitRoute is the idempotency scope for batch submissions.
const SubmitRoute = "POST /v1/batches"

// ItemRequest is one requested download inside a submission.
type ItemRequest struct {
	URL      string `json:"url"`
	TargetID string `json:"target_id"`
	Name     string `json:"name"`
	Format   string `json:"format"`
	Quality  string `json:"quality"`
}

// SubmitRequest is a parsed batch submission.
type SubmitRequest struct {
	Items          []ItemRequest
	CallbackURL    string
	IdempotencyKey string
}

// SubmitResult is the outcome of an accepted or replayed submission.
type SubmitResult struct {
	Batch  batch.Batch
	Replay *idempotency.Record // non-nil when answered from the cache
}

// Starter launches batch processing after admission. It is satisfied by
// the Orchestrator; tests substitute a recorder.
type Starter interface {
	StartBatch(batchID string)
}

// AdmissionService is the front door for batch submissions. It runs the
// admission pipeline in a fixed order: idempotency replay, rate window,
// credit reservation, then batch creation. A request rejected at any
// stage never reaches the stages after it, except that the rate window
// increment has already happened by the time credits are checked.
type AdmissionService struct {
	credits ports.CreditStore
	rates   ports.RateLimitStore
	idem    ports.IdempotencyStore
	batches ports.BatchStore
	starter Starter
	idGen   ports.IDGenerator
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewAdmissionService creates a new admission service.
func NewAdmissionService(
	credits ports.CreditStore,
	rates ports.RateLimitStore,
	idem ports.IdempotencyStore,
	batches ports.BatchStore,
	starter Starter,
	idGen ports.IDGenerator,
	clock ports.Clock,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *AdmissionService {
	return &AdmissionService{
		credits: credits,
		rates:   rates,
		idem:    idem,
		batches: batches,
		starter: starter,
		idGen:   idGen,
		clock:   clock,
		metrics: collector,
		logger:  logger,
	}
}

// Submit admits a batch for the tenant. On success the batch is stored
// in the queued state and handed to the starter; the caller renders the
// response and caches it with CacheResponse.
func (s *AdmissionService) Submit(ctx context.Context, tenant ports.Tenant, req SubmitRequest) (SubmitResult, error) {
	limits := plan.LimitsFor(tenant.Tier)

	if err := validateSubmission(req, limits); err != nil {
		return SubmitResult{}, err
	}

	if req.IdempotencyKey != "" {
		// Lookup and CacheResponse are separate calls: two concurrent
		// first submissions with the same key can both miss here and
		// both be admitted. The write-once store then fixes a single
		// winning response, so every later retry is byte-identical.
		rec, found, err := s.idem.Lookup(ctx, tenant.ID, SubmitRoute, req.IdempotencyKey)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("idempotency lookup: %w", err)
		}
		if found {
			if s.metrics != nil {
				s.metrics.IdempotentHits.Inc()
			}
			s.logger.Debug().
				Str("tenant_id", tenant.ID).
				Str("idempotency_key", req.IdempotencyKey).
				Msg("submission replayed from idempotency cache")
			return SubmitResult{Replay: &rec}, nil
		}
	}

	now := s.clock.Now()
	rateResult, err := s.rates.GetAndCheck(ctx, tenant.ID, limits.RequestsPerMinute, now)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("rate check: %w", err)
	}
	if !rateResult.Allowed {
		if s.metrics != nil {
			if rateResult.Reason == ratelimit.ReasonBlocked {
				s.metrics.AbuseBlocks.WithLabelValues(string(tenant.Tier)).Inc()
			} else {
				s.metrics.RateLimitHits.WithLabelValues(string(tenant.Tier)).Inc()
			}
		}
		return SubmitResult{}, &RateLimitError{Result: rateResult}
	}

	batchID := s.idGen.New()
	cost := credit.Cost(len(req.Items))
	creditResult, err := s.credits.Reserve(ctx, tenant.ID, credit.PeriodStart(now),
		cost, limits.CreditsPerMonth, batchID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("credit reserve: %w", err)
	}
	if !creditResult.OK {
		if s.metrics != nil {
			s.metrics.CreditRejections.WithLabelValues(string(tenant.Tier)).Inc()
		}
		return SubmitResult{}, &InsufficientCreditsError{Result: creditResult}
	}
	if s.metrics != nil {
		s.metrics.CreditsReserved.WithLabelValues(string(tenant.Tier)).Add(float64(cost))
	}

	b := batch.Batch{
		ID:          batchID,
		TenantID:    tenant.ID,
		Status:      batch.StatusQueued,
		Items:       make([]batch.Item, len(req.Items)),
		CreatedAt:   now.UTC(),
		CallbackURL: callbackFor(tenant, req),
	}
	for i, item := range req.Items {
		b.Items[i] = batch.Item{
			URL:      item.URL,
			TargetID: item.TargetID,
			Name:     item.Name,
			Format:   item.Format,
			Quality:  item.Quality,
			Status:   batch.StatusQueued,
		}
	}

	if err := s.batches.Create(ctx, b); err != nil {
		// The reservation already happened; hand the credits back so a
		// storage fault does not eat the tenant's budget.
		if refundErr := s.credits.Refund(ctx, tenant.ID, credit.PeriodStart(now), cost, batchID); refundErr != nil {
			s.logger.Error().Err(refundErr).
				Str("batch_id", batchID).
				Msg("refund after failed batch create also failed")
		}
		return SubmitResult{}, fmt.Errorf("create batch: %w", err)
	}

	s.logger.Info().
		Str("tenant_id", tenant.ID).
		Str("batch_id", batchID).
		Int("items", len(b.Items)).
		Int64("credits", cost).
		Msg("batch admitted")

	s.starter.StartBatch(batchID)

	return SubmitResult{Batch: b}, nil
}

// CacheResponse stores the rendered success response under the
// submission's idempotency key. Rejections are never cached so a
// client can retry the same key after fixing the problem.
func (s *AdmissionService) CacheResponse(ctx context.Context, tenantID, key string, statusCode int, body []byte) {
	if key == "" {
		return
	}
	rec := idempotency.Record{
		TenantID:   tenantID,
		Route:      SubmitRoute,
		Key:        key,
		StatusCode: statusCode,
		Body:       body,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.idem.Store(ctx, rec); err != nil {
		s.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Msg("failed to cache idempotent response")
	}
}

// GetBatch returns a tenant's batch. A batch belonging to another
// tenant reads as not found.
func (s *AdmissionService) GetBatch(ctx context.Context, tenantID, batchID string) (batch.Batch, error) {
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return batch.Batch{}, err
	}
	if b.TenantID != tenantID {
		return batch.Batch{}, ErrBatchNotVisible
	}
	return b, nil
}

// ErrBatchNotVisible hides other tenants' batches.
var ErrBatchNotVisible = fmt.Errorf("batch not found")

func validateSubmission(req SubmitRequest, limits plan.Limits) error {
	if len(req.Items) == 0 {
		return ErrNoItems
	}
	if len(req.Items) > limits.MaxItemsPerBatch {
		return &TooManyItemsError{Count: len(req.Items), Max: limits.MaxItemsPerBatch}
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.URL) == "" {
			return ErrMissingURL
		}
	}
	if req.IdempotencyKey != "" {
		if err := idempotency.ValidateKey(req.IdempotencyKey); err != nil {
			return ErrInvalidIdemKey
		}
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return ErrInvalidCallback
		}
	}
	return nil
}

// callbackFor resolves the effective callback: a per-batch override
// wins over the tenant default.
func callbackFor(tenant ports.Tenant, req SubmitRequest) string {
	if req.CallbackURL != "" {
		return req.CallbackURL
	}
	return tenant.CallbackURL
}

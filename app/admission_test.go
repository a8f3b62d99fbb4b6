package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/fetchvault/adapters/clock"
	"github.com/artpar/fetchvault/adapters/idgen"
	"github.com/artpar/fetchvault/adapters/memory"
	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/domain/plan"
	"github.com/artpar/fetchvault/domain/ratelimit"
	"github.com/artpar/fetchvault/ports"
	"github.com/rs/zerolog"
)

const validIdemKey = "0195c7a2-3b1e-4c4d-9f2a-8e6b5d4c3b2a"

type admissionFixture struct {
	svc     *AdmissionService
	credits *memory.CreditStore
	rates   *memory.RateLimitStore
	idem    *memory.IdempotencyStore
	batches ports.BatchStore
	starter *stubStarter
	clock   *clock.Fake
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()

	fc := clock.NewFake(time.Date(2024, 5, 10, 12, 0, 5, 0, time.UTC))
	rates := memory.NewRateLimitStore(memory.RateLimitStoreConfig{})
	t.Cleanup(func() { rates.Close() })

	f := &admissionFixture{
		credits: memory.NewCreditStore(memory.CreditStoreConfig{Clock: fc}),
		rates:   rates,
		idem:    memory.NewIdempotencyStore(fc),
		batches: memory.NewBatchStore(),
		starter: &stubStarter{},
		clock:   fc,
	}
	f.svc = NewAdmissionService(f.credits, f.rates, f.idem, f.batches,
		f.starter, idgen.NewSequential("b_"), fc, newTestCollector(), zerolog.Nop())
	return f
}

func freeTenant() ports.Tenant {
	return ports.Tenant{ID: "t1", Tier: plan.TierFree, Status: "active"}
}

func items(n int) []ItemRequest {
	out := make([]ItemRequest, n)
	for i := range out {
		out[i] = ItemRequest{URL: "https://example.com/v", TargetID: "vid", Format: "mp4", Quality: "best"}
	}
	return out
}

func TestSubmit_AdmitsBatch(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	req := SubmitRequest{Items: []ItemRequest{
		{URL: "https://example.com/a", TargetID: "a1", Name: "First", Format: "mp4", Quality: "720"},
		{URL: "https://example.com/b", TargetID: "b1", Name: "Second", Format: "mp3", Quality: "audio"},
	}}
	result, err := f.svc.Submit(ctx, freeTenant(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.Replay != nil {
		t.Fatal("fresh submission marked as replay")
	}

	b := result.Batch
	if b.ID == "" || b.TenantID != "t1" {
		t.Errorf("batch identity = %+v", b)
	}
	if len(b.Items) != 2 || b.Items[0].Name != "First" || b.Items[1].Quality != "audio" {
		t.Errorf("items not carried through: %+v", b.Items)
	}

	if got := f.starter.started(); len(got) != 1 || got[0] != b.ID {
		t.Errorf("starter calls = %v", got)
	}

	stored, err := f.batches.Get(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != "queued" {
		t.Errorf("stored Status = %v", stored.Status)
	}

	usage, _ := f.credits.Usage(ctx, "t1", credit.PeriodStart(f.clock.Now()))
	if usage.Used != 2 {
		t.Errorf("credits Used = %d, want 2", usage.Used)
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	blank := items(1)
	blank[0].URL = "  "

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"no items", SubmitRequest{}, ErrNoItems},
		{"blank url", SubmitRequest{Items: blank}, ErrMissingURL},
		{"bad idempotency key", SubmitRequest{Items: items(1), IdempotencyKey: "not-a-uuid"}, ErrInvalidIdemKey},
		{"bad callback scheme", SubmitRequest{Items: items(1), CallbackURL: "ftp://example.com/hook"}, ErrInvalidCallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, freeTenant(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("too many items", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, freeTenant(), SubmitRequest{Items: items(11)})
		var tooMany *TooManyItemsError
		if !errors.As(err, &tooMany) {
			t.Fatalf("Submit = %v, want TooManyItemsError", err)
		}
		if tooMany.Count != 11 || tooMany.Max != 10 {
			t.Errorf("error figures = %+v", tooMany)
		}
	})

	// Rejections consume nothing.
	usage, _ := f.credits.Usage(ctx, "t1", credit.PeriodStart(f.clock.Now()))
	if usage.Used != 0 {
		t.Errorf("credits Used = %d after rejections, want 0", usage.Used)
	}
}

func TestSubmit_IdempotentReplay(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	req := SubmitRequest{Items: items(1), IdempotencyKey: validIdemKey}
	first, err := f.svc.Submit(ctx, freeTenant(), req)
	if err != nil {
		t.Fatal(err)
	}
	f.svc.CacheResponse(ctx, "t1", validIdemKey, 201, []byte(`{"id":"`+first.Batch.ID+`"}`))

	// Replays bypass the rate window entirely: far more replays than the
	// free tier's per-minute limit all succeed.
	for i := 0; i < 15; i++ {
		result, err := f.svc.Submit(ctx, freeTenant(), req)
		if err != nil {
			t.Fatalf("replay %d: %v", i+1, err)
		}
		if result.Replay == nil {
			t.Fatalf("replay %d not served from cache", i+1)
		}
		if result.Replay.StatusCode != 201 {
			t.Errorf("replayed status = %d", result.Replay.StatusCode)
		}
	}

	if got := f.starter.started(); len(got) != 1 {
		t.Errorf("starter called %d times, want 1", len(got))
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := f.svc.Submit(ctx, freeTenant(), SubmitRequest{Items: items(1)}); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	_, err := f.svc.Submit(ctx, freeTenant(), SubmitRequest{Items: items(1)})
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("Submit = %v, want RateLimitError", err)
	}
	if rateErr.Result.Reason != ratelimit.ReasonLimitExceeded {
		t.Errorf("Reason = %q", rateErr.Result.Reason)
	}
	if rateErr.Result.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v", rateErr.Result.RetryAfter)
	}
}

func TestSubmit_InsufficientCredits(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	// Free tier: 50 credits, 10 items per batch.
	for i := 0; i < 5; i++ {
		if _, err := f.svc.Submit(ctx, freeTenant(), SubmitRequest{Items: items(10)}); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	_, err := f.svc.Submit(ctx, freeTenant(), SubmitRequest{Items: items(10)})
	var creditErr *InsufficientCreditsError
	if !errors.As(err, &creditErr) {
		t.Fatalf("Submit = %v, want InsufficientCreditsError", err)
	}
	if creditErr.Result.Available != 0 || creditErr.Result.Needed != 10 {
		t.Errorf("credit figures = %+v", creditErr.Result)
	}

	usage, _ := f.credits.Usage(ctx, "t1", credit.PeriodStart(f.clock.Now()))
	if usage.Used != 50 {
		t.Errorf("Used = %d after rejection, want 50", usage.Used)
	}
}

func TestSubmit_RefundsOnCreateFailure(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	f.svc.batches = &failingBatchStore{BatchStore: memory.NewBatchStore()}

	_, err := f.svc.Submit(ctx, freeTenant(), SubmitRequest{Items: items(3)})
	if err == nil {
		t.Fatal("Submit succeeded against a broken store")
	}

	usage, _ := f.credits.Usage(ctx, "t1", credit.PeriodStart(f.clock.Now()))
	if usage.Used != 0 {
		t.Errorf("Used = %d after refund, want 0", usage.Used)
	}
	if got := f.starter.started(); len(got) != 0 {
		t.Errorf("starter called for a batch that was never created")
	}
}

func TestGetBatch_TenantScoped(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	result, err := f.svc.Submit(ctx, freeTenant(), SubmitRequest{Items: items(1)})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.GetBatch(ctx, "t1", result.Batch.ID); err != nil {
		t.Errorf("owner read = %v", err)
	}
	if _, err := f.svc.GetBatch(ctx, "t2", result.Batch.ID); !errors.Is(err, ErrBatchNotVisible) {
		t.Errorf("cross-tenant read = %v, want ErrBatchNotVisible", err)
	}
}

func TestSubmit_CallbackResolution(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	tenant := freeTenant()
	tenant.CallbackURL = "https://tenant.example.com/hook"

	result, err := f.svc.Submit(ctx, tenant, SubmitRequest{Items: items(1)})
	if err != nil {
		t.Fatal(err)
	}
	if result.Batch.CallbackURL != tenant.CallbackURL {
		t.Errorf("CallbackURL = %q, want tenant default", result.Batch.CallbackURL)
	}

	override := "https://batch.example.com/hook"
	result, err = f.svc.Submit(ctx, tenant, SubmitRequest{Items: items(1), CallbackURL: override})
	if err != nil {
		t.Fatal(err)
	}
	if result.Batch.CallbackURL != override {
		t.Errorf("CallbackURL = %q, want per-batch override", result.Batch.CallbackURL)
	}
}

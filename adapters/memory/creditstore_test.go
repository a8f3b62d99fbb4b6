package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/fetchvault/adapters/clock"
	"github.com/artpar/fetchvault/adapters/idgen"
	"github.com/artpar/fetchvault/adapters/memory"
	"github.com/artpar/fetchvault/domain/credit"
)

var period = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newCreditStore(t *testing.T) *memory.CreditStore {
	t.Helper()
	return memory.NewCreditStore(memory.CreditStoreConfig{
		IDGen: idgen.NewSequential("le_"),
		Clock: clock.NewFake(period),
	})
}

func TestCreditStore_ReserveAndReject(t *testing.T) {
	s := newCreditStore(t)
	ctx := context.Background()

	result, err := s.Reserve(ctx, "t1", period, 30, 50, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK {
		t.Fatal("first reservation should succeed")
	}

	result, err = s.Reserve(ctx, "t1", period, 30, 50, "b2")
	if err != nil {
		t.Fatal(err)
	}
	if result.OK {
		t.Fatal("second reservation should fail: 30+30 > 50")
	}
	if result.Used != 30 || result.Available != 20 || result.Needed != 30 {
		t.Errorf("rejection figures = %+v", result)
	}

	// A failed reservation must not move the counter.
	state, err := s.Usage(ctx, "t1", period)
	if err != nil {
		t.Fatal(err)
	}
	if state.Used != 30 {
		t.Errorf("Used = %d after failed reserve, want 30", state.Used)
	}
}

// Concurrent reservations against the same tenant must never oversell.
func TestCreditStore_ConcurrentReservations(t *testing.T) {
	s := newCreditStore(t)
	ctx := context.Background()

	const (
		workers = 50
		limit   = 20
	)

	var wg sync.WaitGroup
	granted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.Reserve(ctx, "t1", period, 1, limit, "b")
			if err != nil {
				t.Error(err)
				return
			}
			if result.OK {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	if got := len(granted); got != limit {
		t.Errorf("granted %d reservations, want exactly %d", got, limit)
	}

	state, err := s.Usage(ctx, "t1", period)
	if err != nil {
		t.Fatal(err)
	}
	if state.Used != limit {
		t.Errorf("Used = %d, want %d", state.Used, limit)
	}
}

func TestCreditStore_RefundFloorsAtZero(t *testing.T) {
	s := newCreditStore(t)
	ctx := context.Background()

	if _, err := s.Reserve(ctx, "t1", period, 5, 50, "b1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Refund(ctx, "t1", period, 10, "b1"); err != nil {
		t.Fatal(err)
	}

	state, err := s.Usage(ctx, "t1", period)
	if err != nil {
		t.Fatal(err)
	}
	if state.Used != 0 {
		t.Errorf("Used = %d after over-refund, want 0", state.Used)
	}
}

func TestCreditStore_LedgerRecordsMovements(t *testing.T) {
	s := newCreditStore(t)
	ctx := context.Background()

	s.Reserve(ctx, "t1", period, 5, 50, "b1")
	s.Reserve(ctx, "t1", period, 3, 50, "b2")
	s.Refund(ctx, "t1", period, 5, "b1")

	entries, err := s.Ledger(ctx, "t1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first: refund, then the second reservation.
	if entries[0].Amount != -5 || entries[0].BatchID != "b1" {
		t.Errorf("newest entry = %+v, want refund of 5 for b1", entries[0])
	}
	if entries[1].Amount != 3 || entries[1].BatchID != "b2" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestCreditStore_PeriodsAreIndependent(t *testing.T) {
	s := newCreditStore(t)
	ctx := context.Background()

	if _, err := s.Reserve(ctx, "t1", period, 50, 50, "b1"); err != nil {
		t.Fatal(err)
	}

	next := credit.PeriodEnd(period)
	result, err := s.Reserve(ctx, "t1", next, 50, 50, "b2")
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK {
		t.Error("new period should start with a fresh counter")
	}
}

func TestCreditStore_AddBandwidth(t *testing.T) {
	s := newCreditStore(t)
	ctx := context.Background()

	s.AddBandwidth(ctx, "t1", period, 1000)
	s.AddBandwidth(ctx, "t1", period, 500)

	state, err := s.Usage(ctx, "t1", period)
	if err != nil {
		t.Fatal(err)
	}
	if state.BandwidthBytes != 1500 {
		t.Errorf("BandwidthBytes = %d, want 1500", state.BandwidthBytes)
	}
}

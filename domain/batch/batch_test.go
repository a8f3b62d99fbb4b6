package batch_test

import (
	"testing"

	"github.com/artpar/fetchvault/domain/batch"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to batch.Status
		want     bool
	}{
		{batch.StatusQueued, batch.StatusDownloading, true},
		{batch.StatusQueued, batch.StatusFailed, true},
		{batch.StatusQueued, batch.StatusCompleted, false},
		{batch.StatusQueued, batch.StatusProcessing, false},
		{batch.StatusDownloading, batch.StatusProcessing, true},
		{batch.StatusDownloading, batch.StatusFailed, true},
		{batch.StatusDownloading, batch.StatusCompleted, false},
		{batch.StatusProcessing, batch.StatusCompleted, true},
		{batch.StatusProcessing, batch.StatusFailed, true},
		{batch.StatusProcessing, batch.StatusDownloading, false},
		{batch.StatusCompleted, batch.StatusFailed, false},
		{batch.StatusCompleted, batch.StatusDownloading, false},
		{batch.StatusFailed, batch.StatusQueued, false},
	}

	for _, tt := range tests {
		if got := batch.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []batch.Status{batch.StatusQueued, batch.StatusDownloading, batch.StatusProcessing} {
		if batch.IsTerminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []batch.Status{batch.StatusCompleted, batch.StatusFailed} {
		if !batch.IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func items(progress ...int) []batch.Item {
	out := make([]batch.Item, len(progress))
	for i, p := range progress {
		out[i] = batch.Item{Progress: p}
	}
	return out
}

func TestAggregateProgress(t *testing.T) {
	tests := []struct {
		name   string
		status batch.Status
		items  []batch.Item
		want   int
	}{
		{"no items reports zero", batch.StatusCompleted, nil, 0},
		{"queued pinned to zero", batch.StatusQueued, items(50, 50), 0},
		{"downloading averages", batch.StatusDownloading, items(0, 50, 100), 50},
		{"downloading rounds", batch.StatusDownloading, items(33, 34), 34},
		{"failed freezes mean", batch.StatusFailed, items(80, 20), 50},
		{"processing pinned to 95", batch.StatusProcessing, items(100, 100), 95},
		{"completed pinned to 100", batch.StatusCompleted, items(0, 0), 100},
		{"out of range clamps", batch.StatusDownloading, items(-20, 150), 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := batch.Batch{Status: tt.status, Items: tt.items}
			if got := batch.AggregateProgress(b); got != tt.want {
				t.Errorf("AggregateProgress = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestItemsTerminal(t *testing.T) {
	empty := batch.Batch{}
	if batch.ItemsTerminal(empty) {
		t.Error("empty batch must not report terminal items")
	}

	mixed := batch.Batch{Items: []batch.Item{
		{Status: batch.StatusCompleted},
		{Status: batch.StatusDownloading},
	}}
	if batch.ItemsTerminal(mixed) {
		t.Error("in-flight item must keep ItemsTerminal false")
	}

	done := batch.Batch{Items: []batch.Item{
		{Status: batch.StatusCompleted},
		{Status: batch.StatusFailed},
	}}
	if !batch.ItemsTerminal(done) {
		t.Error("all-terminal items must report true")
	}
}

func TestCountByStatus(t *testing.T) {
	b := batch.Batch{Items: []batch.Item{
		{Status: batch.StatusCompleted},
		{Status: batch.StatusCompleted},
		{Status: batch.StatusFailed},
		{Status: batch.StatusDownloading},
	}}
	completed, failed := batch.CountByStatus(b)
	if completed != 2 || failed != 1 {
		t.Errorf("CountByStatus = (%d, %d), want (2, 1)", completed, failed)
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := batch.Batch{
		ID:    "b1",
		Items: []batch.Item{{URL: "u1", Progress: 10}},
		Parts: []batch.PartRef{{Index: 1, Ref: "r1"}},
	}

	c := batch.Clone(orig)
	c.Items[0].Progress = 99
	c.Parts[0].Ref = "changed"

	if orig.Items[0].Progress != 10 {
		t.Error("clone shares item backing array")
	}
	if orig.Parts[0].Ref != "r1" {
		t.Error("clone shares part backing array")
	}
}

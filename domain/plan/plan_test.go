package plan_test

import (
	"testing"

	"github.com/artpar/fetchvault/domain/plan"
)

func TestParse(t *testing.T) {
	for _, s := range []string{"free", "pro", "archivist", "enterprise"} {
		tier, ok := plan.Parse(s)
		if !ok || string(tier) != s {
			t.Errorf("Parse(%q) = (%v, %v)", s, tier, ok)
		}
	}

	tier, ok := plan.Parse("platinum")
	if ok {
		t.Error("unknown tier parsed as known")
	}
	if tier != plan.TierFree {
		t.Errorf("unknown tier fell back to %v, want free", tier)
	}
}

func TestLimitsFor(t *testing.T) {
	tests := []struct {
		tier    plan.Tier
		credits int64
		rpm     int
		items   int
	}{
		{plan.TierFree, 50, 10, 10},
		{plan.TierPro, 500, 30, 50},
		{plan.TierArchivist, 2000, 60, 100},
		{plan.TierEnterprise, 10000, 120, 500},
		{plan.Tier("bogus"), 50, 10, 10}, // unknown gets free limits
	}

	for _, tt := range tests {
		l := plan.LimitsFor(tt.tier)
		if l.CreditsPerMonth != tt.credits || l.RequestsPerMinute != tt.rpm || l.MaxItemsPerBatch != tt.items {
			t.Errorf("LimitsFor(%s) = %+v", tt.tier, l)
		}
	}
}

func TestCompare(t *testing.T) {
	if plan.Compare(plan.TierFree, plan.TierPro) != -1 {
		t.Error("free should order before pro")
	}
	if plan.Compare(plan.TierEnterprise, plan.TierArchivist) != 1 {
		t.Error("enterprise should order after archivist")
	}
	if plan.Compare(plan.TierPro, plan.TierPro) != 0 {
		t.Error("equal tiers should compare 0")
	}
	if plan.Compare(plan.Tier("bogus"), plan.TierFree) != -1 {
		t.Error("unknown tier should order before free")
	}
}

func TestLowest(t *testing.T) {
	if plan.Lowest() != plan.TierFree {
		t.Errorf("Lowest = %v", plan.Lowest())
	}
}

// Package plan provides plan tier value types and pure functions.
package plan

// Tier identifies a pricing tier.
// Tiers are ordered: free < pro < archivist < enterprise.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierArchivist  Tier = "archivist"
	TierEnterprise Tier = "enterprise"
)

// Limits holds the usage limits derived from a tier.
type Limits struct {
	CreditsPerMonth   int64 // download credits per billing period
	RequestsPerMinute int   // admission requests per minute
	MaxItemsPerBatch  int   // URLs accepted in one submission
}

// limitsTable is the static tier → limits mapping.
// Tenants never carry custom limits; changing a tenant's limits means
// changing its tier.
var limitsTable = map[Tier]Limits{
	TierFree:       {CreditsPerMonth: 50, RequestsPerMinute: 10, MaxItemsPerBatch: 10},
	TierPro:        {CreditsPerMonth: 500, RequestsPerMinute: 30, MaxItemsPerBatch: 50},
	TierArchivist:  {CreditsPerMonth: 2000, RequestsPerMinute: 60, MaxItemsPerBatch: 100},
	TierEnterprise: {CreditsPerMonth: 10000, RequestsPerMinute: 120, MaxItemsPerBatch: 500},
}

// rank gives each tier its position in the ordering.
var rank = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierArchivist:  2,
	TierEnterprise: 3,
}

// Valid reports whether t is a known tier.
// This is a PURE function.
func Valid(t Tier) bool {
	_, ok := rank[t]
	return ok
}

// Parse converts a string to a Tier, falling back to TierFree for
// unknown values. The second return reports whether the input was a
// known tier.
// This is a PURE function.
func Parse(s string) (Tier, bool) {
	t := Tier(s)
	if Valid(t) {
		return t, true
	}
	return TierFree, false
}

// LimitsFor returns the static limits for a tier.
// Unknown tiers get the free limits.
// This is a PURE function.
func LimitsFor(t Tier) Limits {
	if l, ok := limitsTable[t]; ok {
		return l
	}
	return limitsTable[TierFree]
}

// Compare returns -1, 0 or 1 as a orders before, equal to or after b.
// Unknown tiers order before free.
// This is a PURE function.
func Compare(a, b Tier) int {
	ra, oka := rank[a]
	rb, okb := rank[b]
	if !oka {
		ra = -1
	}
	if !okb {
		rb = -1
	}
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// Lowest returns the lowest tier. Cancellation events revert tenants here.
// This is a PURE function.
func Lowest() Tier {
	return TierFree
}

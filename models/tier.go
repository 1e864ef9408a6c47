package models

// SubscriptionTier represents the capability level of a local identity.
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierBasic      SubscriptionTier = "basic"
	TierPremium    SubscriptionTier = "premium"
	TierEnterprise SubscriptionTier = "enterprise"
)

// tierRanks is the fixed total order free < basic < premium < enterprise.
var tierRanks = map[SubscriptionTier]int{
	TierFree:       0,
	TierBasic:      1,
	TierPremium:    2,
	TierEnterprise: 3,
}

// Rank returns the position of the tier in the total order. Unrecognized
// values rank as free so a corrupt or stale tier never grants extra access.
func (t SubscriptionTier) Rank() int {
	if rank, ok := tierRanks[t]; ok {
		return rank
	}
	return tierRanks[TierFree]
}

// AtLeast reports whether the tier meets or exceeds required.
func (t SubscriptionTier) AtLeast(required SubscriptionTier) bool {
	return t.Rank() >= required.Rank()
}

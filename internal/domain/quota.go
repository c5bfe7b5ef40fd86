package domain

import "time"

// QuotaResource enumerates the metered resources on a tenant account.
type QuotaResource string

const (
	QuotaResourceImages  QuotaResource = "images"
	QuotaResourceVideos  QuotaResource = "videos"
	QuotaResourceCredits QuotaResource = "credits"
)

// SoftOverageFactor permits consumption slightly above the nominal limit
// before a request is rejected.
const SoftOverageFactor = 1.10

// QuotaAccount carries a tenant's monthly consumption counters. A non-positive
// limit means the resource is unrestricted.
type QuotaAccount struct {
	TenantID     string
	QuotaImages  int
	ImagesUsed   int
	QuotaVideos  int
	VideosUsed   int
	QuotaCredits int
	CreditsUsed  int
	ResetsOn     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining reports the unconsumed quota for a resource, never negative.
func (a QuotaAccount) Remaining(res QuotaResource) int {
	limit, used := a.counters(res)
	if limit <= 0 {
		return 0
	}
	if rem := limit - used; rem > 0 {
		return rem
	}
	return 0
}

// Admits reports whether consuming amount would stay within the soft-overage
// allowance for the resource.
func (a QuotaAccount) Admits(res QuotaResource, amount int) bool {
	limit, used := a.counters(res)
	if limit <= 0 {
		return true
	}
	return float64(used+amount) <= float64(limit)*SoftOverageFactor
}

func (a QuotaAccount) counters(res QuotaResource) (limit, used int) {
	switch res {
	case QuotaResourceImages:
		return a.QuotaImages, a.ImagesUsed
	case QuotaResourceVideos:
		return a.QuotaVideos, a.VideosUsed
	case QuotaResourceCredits:
		return a.QuotaCredits, a.CreditsUsed
	}
	return 0, 0
}

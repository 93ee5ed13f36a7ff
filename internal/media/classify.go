package media

import "strings"

// classifyRule maps a set of normalized failure-signal markers to a
// category. Rules are evaluated in order; the first hit wins.
type classifyRule struct {
	category FailureCategory
	markers  []string
}

// classifyRules is ordered most-specific first: credential rejections
// carry a corrective side effect (pool invalidation) and must not be
// shadowed by the generic availability markers.
var classifyRules = []classifyRule{
	{
		category: CategoryCredentialInvalid,
		markers: []string{
			"sign in to confirm",
			"login required",
			"cookies are no longer valid",
			"invalid credential",
			"signature",
			"authentication",
			"unauthorized",
			"http 403",
			"status code: 403",
		},
	},
	{
		category: CategoryRateLimitedUpstream,
		markers: []string{
			"too many requests",
			"rate limit",
			"http 429",
			"status code: 429",
			"slow down",
		},
	},
	{
		category: CategoryUnavailable,
		markers: []string{
			"video unavailable",
			"not available",
			"private video",
			"this video is private",
			"removed",
			"region",
			"country",
			"copyright",
			"account associated with this video has been terminated",
			"cannot playback and download",
			"does not exist",
		},
	},
}

// Classify buckets a raw fetch failure into a stable category. It is a
// pure function over the normalized error text.
func Classify(err error) FailureCategory {
	if err == nil {
		return CategoryUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, marker := range rule.markers {
			if strings.Contains(msg, marker) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

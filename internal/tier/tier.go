package tier

import "strings"

// Tier identifies a subscription level.
type Tier string

const (
	Free       Tier = "free"
	Basic      Tier = "basic"
	Pro        Tier = "pro"
	Enterprise Tier = "enterprise"
)

// Unlimited is the sentinel for count fields with no quota.
const Unlimited = -1

// Profile holds the resource and quota envelope for one subscription tier.
type Profile struct {
	Tier          Tier
	MaxCPUSeconds int
	MaxMemoryMB   int
	MaxSourceKB   int
	MaxStdinKB    int
	PerHour       int
	PerDay        int
}

var profiles = map[Tier]Profile{
	Free: {
		Tier:          Free,
		MaxCPUSeconds: 2,
		MaxMemoryMB:   128,
		MaxSourceKB:   64,
		MaxStdinKB:    16,
		PerHour:       10,
		PerDay:        50,
	},
	Basic: {
		Tier:          Basic,
		MaxCPUSeconds: 5,
		MaxMemoryMB:   256,
		MaxSourceKB:   256,
		MaxStdinKB:    64,
		PerHour:       60,
		PerDay:        300,
	},
	Pro: {
		Tier:          Pro,
		MaxCPUSeconds: 10,
		MaxMemoryMB:   512,
		MaxSourceKB:   1024,
		MaxStdinKB:    256,
		PerHour:       300,
		PerDay:        2000,
	},
	Enterprise: {
		Tier:          Enterprise,
		MaxCPUSeconds: 15,
		MaxMemoryMB:   1024,
		MaxSourceKB:   4096,
		MaxStdinKB:    1024,
		PerHour:       Unlimited,
		PerDay:        Unlimited,
	},
}

// Lookup returns the profile for a tier. Unknown tiers fall back to the free
// profile so a misconfigured caller can never escalate its own limits.
func Lookup(t Tier) Profile {
	if p, ok := profiles[Tier(strings.ToLower(string(t)))]; ok {
		return p
	}
	return profiles[Free]
}

// All returns every configured profile keyed by tier.
func All() map[Tier]Profile {
	out := make(map[Tier]Profile, len(profiles))
	for k, v := range profiles {
		out[k] = v
	}
	return out
}

// UnlimitedQuota reports whether the profile has no execution quota at all.
func (p Profile) UnlimitedQuota() bool {
	return p.PerDay == Unlimited
}

package tier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupKnownTiers(t *testing.T) {
	free := Lookup(Free)
	require.Equal(t, 10, free.PerHour)
	require.Equal(t, 50, free.PerDay)
	require.False(t, free.UnlimitedQuota())

	enterprise := Lookup(Enterprise)
	require.Equal(t, Unlimited, enterprise.PerHour)
	require.True(t, enterprise.UnlimitedQuota())
}

func TestLookupUnknownFallsBackToFree(t *testing.T) {
	p := Lookup(Tier("platinum"))
	require.Equal(t, Free, p.Tier)
}

func TestLookupCaseInsensitive(t *testing.T) {
	p := Lookup(Tier("PRO"))
	require.Equal(t, Pro, p.Tier)
}

func TestHourlyNeverAboveDaily(t *testing.T) {
	for name, p := range All() {
		if p.UnlimitedQuota() {
			continue
		}
		require.LessOrEqual(t, p.PerHour, p.PerDay, "tier %s", name)
	}
}

package derived_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foaggregator/fo-aggregator/internal/derived"
)

func TestMaxPainPicksMinimumPainStrike(t *testing.T) {
	rows := []derived.StrikeVolumes{
		{Strike: 24900, CallVolume: 100, PutVolume: 10},
		{Strike: 25000, CallVolume: 50, PutVolume: 50},
		{Strike: 25100, CallVolume: 10, PutVolume: 100},
	}

	pcr, maxPain := derived.Compute(rows)
	require.NotNil(t, maxPain)
	require.Equal(t, 25000.0, *maxPain)

	require.NotNil(t, pcr)
	require.InDelta(t, 160.0/160.0, *pcr, 1e-9)
}

func TestPCRNullWhenNoCallVolume(t *testing.T) {
	rows := []derived.StrikeVolumes{{Strike: 25000, CallVolume: 0, PutVolume: 50}}
	pcr, _ := derived.Compute(rows)
	require.Nil(t, pcr)
}

func TestMaxPainNilWhenEmpty(t *testing.T) {
	require.Nil(t, derived.MaxPainStrike(nil))
}

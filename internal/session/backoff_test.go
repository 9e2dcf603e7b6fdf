package session

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeWait_ExactWithoutJitter(t *testing.T) {
	t.Parallel()

	zero := func() float64 { return 0 }
	// Powers of the base avoid float rounding at the ceil boundary.
	require.Equal(t, int64(16), computeWait(16, 2, zero))
	require.Equal(t, int64(8), computeWait(16, 2, func() float64 { return -1 }))
	require.Equal(t, int64(32), computeWait(16, 2, func() float64 { return 1 }))
}

func TestComputeWait_NeverBelowOne(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(1), computeWait(10, 2, func() float64 { return -50 }))
}

func TestComputeWait_SamplesArePositiveAndCentered(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	const n = 1000
	waits := make([]int64, n)
	for i := range waits {
		waits[i] = computeWait(10, 2, rng.NormFloat64)
		require.Positive(t, waits[i])
	}

	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	median := float64(waits[n/2])
	// The jitter is log-normal, so the median sits near the nominal wait.
	require.InDelta(t, 10, median, 4)
}

func TestComputeWait_VarianceGrowsWithJitterMagnitude(t *testing.T) {
	t.Parallel()

	spread := func(scale float64) float64 {
		rng := rand.New(rand.NewSource(7))
		const n = 1000
		var sum, sumSq float64
		for i := 0; i < n; i++ {
			w := float64(computeWait(10, 2, func() float64 { return scale * rng.NormFloat64() }))
			sum += w
			sumSq += w * w
		}
		mean := sum / n
		return math.Sqrt(sumSq/n - mean*mean)
	}

	require.Greater(t, spread(2.0), spread(0.5))
}

package session

import "math"

// computeWait returns the number of whole wait units before the next retry.
// The nominal average wait is perturbed multiplicatively by a log-normal
// jitter factor: the wait is base raised to (log_base(averageWait) + one
// standard-normal draw), rounded up. The result is centered near averageWait
// with heavy-tailed variance so concurrently failing fetches do not retry in
// lockstep.
func computeWait(averageWait, base float64, norm func() float64) int64 {
	exponent := math.Log(averageWait)/math.Log(base) + norm()
	wait := int64(math.Ceil(math.Pow(base, exponent)))
	if wait < 1 {
		wait = 1
	}
	return wait
}

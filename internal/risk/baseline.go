package risk

import "sentinelflow/internal/models"

// EstimateBPS is the mean bytes/second across consecutive sample pairs.
// Pairs whose timestamps do not advance are skipped. Negative rates from
// counter resets are kept as-is.
func EstimateBPS(history []models.Sample) float64 {
	if len(history) < 2 {
		return 0
	}
	var sum float64
	var n int
	for i := 1; i < len(history); i++ {
		rate, ok := pairRate(history[i-1], history[i])
		if !ok {
			continue
		}
		sum += rate
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func pairRate(prev, curr models.Sample) (float64, bool) {
	dt := curr.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return float64(curr.TotalBytes()-prev.TotalBytes()) / dt, true
}

// currentBPS is the rate between the last two samples, 0 when there are
// fewer than two or their timestamps do not advance.
func currentBPS(history []models.Sample) float64 {
	if len(history) < 2 {
		return 0
	}
	rate, ok := pairRate(history[len(history)-2], history[len(history)-1])
	if !ok {
		return 0
	}
	return rate
}

package risk

import (
	"time"

	"sentinelflow/internal/models"
)

// Trim returns the samples of history with Timestamp >= now-window, in their
// original order. The input slice is not modified.
func Trim(history []models.Sample, now time.Time, window time.Duration) []models.Sample {
	cutoff := now.Add(-window)
	out := make([]models.Sample, 0, len(history))
	for _, s := range history {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

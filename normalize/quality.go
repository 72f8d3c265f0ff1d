package normalize

import "time"

// Score computes a reading's quality score. The score starts at 1.0, loses
// the family's RequiredPenalty once per missing (or zero) required
// measurement, loses StalePenalty when the reading time lags receipt beyond
// staleAfter, and is floored at 0. A fully populated fresh reading scores 1.0.
func Score(m *FamilyMapping, missing int, readingTime, receivedAt time.Time, staleAfter time.Duration) float64 {
	score := 1.0
	score -= float64(missing) * m.RequiredPenalty
	if staleAfter > 0 && receivedAt.Sub(readingTime) > staleAfter {
		score -= m.StalePenalty
	}
	if score < 0 {
		return 0
	}
	return score
}

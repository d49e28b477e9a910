package domain

import "math"

// RewardRisk returns the reward-to-risk ratio at the first take profit,
// measured as the span from stop to tp1 over the span from entry to stop.
// Geometry must cohere with the side (long: stop < entry < tp1, short:
// tp1 < entry < stop); anything else scores zero.
func RewardRisk(dir Direction, entry, stop, tp1 float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	switch dir {
	case Long:
		if !(stop < entry && entry < tp1) {
			return 0
		}
	case Short:
		if !(tp1 < entry && entry < stop) {
			return 0
		}
	default:
		return 0
	}
	return math.Abs(tp1-stop) / risk
}

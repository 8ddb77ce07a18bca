// Package memory models how much of a topic the learner still holds.
// Retention and urgency are pure read-side views computed from the current
// topic state and the clock; they are never stored, so the passage of real
// time alone changes scheduling without an explicit recompute step.
package memory

import (
	"math"
	"time"

	"github.com/m-mizutani/harrier/pkg/model"
)

// retentionBaseline models an unreviewed-but-assessed topic as moderately
// fresh.
const retentionBaseline = 80

// HalfLifeHours returns the per-topic half-life in hours. More vulnerable
// topics decay faster: 24h at vulnerability<=2, down to 4.8h at 10.
func HalfLifeHours(t *model.Topic) float64 {
	return 24.0 / math.Max(1, float64(t.Vulnerability)/2)
}

// Retention returns the modeled retention percentage in [0, 100].
// Monotonically non-increasing as now advances with vulnerability held
// fixed, and non-increasing in vulnerability for fixed elapsed time.
func Retention(t *model.Topic, now time.Time) int {
	if t.LastReviewedAt == nil {
		return retentionBaseline
	}

	h := now.Sub(*t.LastReviewedAt).Hours()
	if h <= 0 {
		// Clock skew puts the review in the future; treat as fresh.
		return 100
	}

	r := int(math.Round(100 * math.Exp(-math.Ln2*h/HalfLifeHours(t))))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// CurvePoint is one sample of the projected forgetting curve
type CurvePoint struct {
	Hours     float64
	Retention int
}

// Curve samples the forgetting curve a topic would follow from a fresh
// review, over the given horizon. Used for schedule displays.
func Curve(t *model.Topic, horizon time.Duration, samples int) []CurvePoint {
	if samples < 2 {
		samples = 2
	}

	halfLife := HalfLifeHours(t)
	points := make([]CurvePoint, samples)
	for i := range points {
		h := float64(i) / float64(samples-1) * horizon.Hours()
		r := int(math.Round(100 * math.Exp(-math.Ln2*h/halfLife)))
		if r < 0 {
			r = 0
		}
		points[i] = CurvePoint{Hours: h, Retention: r}
	}
	return points
}

package memory

import (
	"math"
	"sort"
	"time"

	"github.com/m-mizutani/harrier/pkg/model"
)

// Urgency weights: forgetting dominates slightly less than declared
// weakness, exam importance is a steady bias.
const (
	forgettingWeight    = 0.4
	vulnerabilityWeight = 3.5
	examWeight          = 2.0
)

// Urgency returns the remediation priority of a topic, higher = more urgent
func Urgency(t *model.Topic, now time.Time) int {
	return int(math.Round(
		forgettingWeight*float64(100-Retention(t, now)) +
			vulnerabilityWeight*float64(t.Vulnerability) +
			examWeight*float64(t.ExamWeight)))
}

// Rank returns the topics sorted descending by urgency. The sort is stable:
// equal-urgency topics keep their input order. The input slice is not
// modified.
func Rank(topics []*model.Topic, now time.Time) []*model.Topic {
	ranked := make([]*model.Topic, len(topics))
	copy(ranked, topics)

	sort.SliceStable(ranked, func(i, j int) bool {
		return Urgency(ranked[i], now) > Urgency(ranked[j], now)
	})
	return ranked
}

// MostUrgent returns the highest-urgency topic, or nil for an empty set
func MostUrgent(topics []*model.Topic, now time.Time) *model.Topic {
	ranked := Rank(topics, now)
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}

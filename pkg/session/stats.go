package session

import (
	"math"

	"github.com/m-mizutani/harrier/pkg/model"
)

// Stats is an aggregate read-side view of session performance
type Stats struct {
	Answered             int
	CorrectCount         int
	Accuracy             int // percent, 0 when nothing answered
	AverageVulnerability int
	TotalXP              int
}

// Stats computes the aggregate view from the current session
func (s *Store) Stats() Stats {
	return ComputeStats(s.Snapshot())
}

// ComputeStats derives aggregate performance numbers from a snapshot
func ComputeStats(session *model.Session) Stats {
	stats := Stats{TotalXP: session.TotalXP}

	for _, h := range session.History {
		stats.Answered++
		if h.Correct {
			stats.CorrectCount++
		}
	}
	if stats.Answered > 0 {
		stats.Accuracy = int(math.Round(float64(stats.CorrectCount) / float64(stats.Answered) * 100))
	}

	if len(session.Topics) > 0 {
		sum := 0
		for _, t := range session.Topics {
			sum += t.Vulnerability
		}
		stats.AverageVulnerability = int(math.Round(float64(sum) / float64(len(session.Topics))))
	}

	return stats
}

// TopicAccuracy returns the answer accuracy for one topic as a percentage
// and the number of answers it is based on. Zero answers yields (0, 0).
func TopicAccuracy(session *model.Session, id model.TopicID) (int, int) {
	answered, correct := 0, 0
	for _, h := range session.History {
		if h.TopicID != id {
			continue
		}
		answered++
		if h.Correct {
			correct++
		}
	}
	if answered == 0 {
		return 0, 0
	}
	return int(math.Round(float64(correct) / float64(answered) * 100)), answered
}

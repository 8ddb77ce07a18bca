package memory_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/harrier/pkg/memory"
	"github.com/m-mizutani/harrier/pkg/model"
)

func reviewedTopic(vulnerability int, reviewedAt time.Time) *model.Topic {
	return &model.Topic{
		ID:            "t1",
		Name:          "Thermodynamics",
		Difficulty:    5,
		Vulnerability: vulnerability,
		ExamWeight:    5,
		LastReviewedAt: func() *time.Time {
			ts := reviewedAt
			return &ts
		}(),
	}
}

func TestRetentionNeverReviewed(t *testing.T) {
	topic := &model.Topic{ID: "t1", Name: "Statistics", Difficulty: 5, Vulnerability: 9, ExamWeight: 5}
	gt.Equal(t, memory.Retention(topic, time.Now()), 80)
}

func TestRetentionTwelveHoursHighVulnerability(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	topic := reviewedTopic(10, now.Add(-12*time.Hour))

	// halfLife = 24/5 = 4.8h, retention = round(100*e^(-ln2*12/4.8)) = 18
	gt.Equal(t, memory.Retention(topic, now), 18)
}

func TestRetentionFreshReview(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	topic := reviewedTopic(7, now)
	gt.Equal(t, memory.Retention(topic, now), 100)
}

func TestRetentionFutureReviewClamped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	topic := reviewedTopic(7, now.Add(time.Hour))
	gt.Equal(t, memory.Retention(topic, now), 100)
}

func TestRetentionNonIncreasingOverTime(t *testing.T) {
	reviewed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	topic := reviewedTopic(6, reviewed)

	prev := 100
	for h := 0; h <= 96; h++ {
		now := reviewed.Add(time.Duration(h) * time.Hour)
		r := memory.Retention(topic, now)
		gt.True(t, r >= 0 && r <= 100)
		gt.True(t, r <= prev)
		prev = r
	}
}

func TestRetentionDecreasesWithVulnerability(t *testing.T) {
	reviewed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := reviewed.Add(8 * time.Hour)

	// For fixed elapsed time, higher vulnerability means strictly lower
	// retention once the half-life divisor engages (v >= 3).
	prev := memory.Retention(reviewedTopic(3, reviewed), now)
	for v := 4; v <= 10; v++ {
		r := memory.Retention(reviewedTopic(v, reviewed), now)
		gt.True(t, r < prev)
		prev = r
	}
}

func TestRetentionSparseSchedule(t *testing.T) {
	// One review months ago: retention floors at 0 while the topic still
	// carries whatever vulnerability its last answers produced.
	reviewed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := reviewed.Add(90 * 24 * time.Hour)
	topic := reviewedTopic(3, reviewed)

	gt.Equal(t, memory.Retention(topic, now), 0)
}

func TestCurve(t *testing.T) {
	topic := &model.Topic{ID: "t1", Name: "Finance", Difficulty: 5, Vulnerability: 10, ExamWeight: 5}
	points := memory.Curve(topic, 72*time.Hour, 49)

	gt.Equal(t, len(points), 49)
	gt.Equal(t, points[0].Retention, 100)
	gt.Equal(t, points[0].Hours, 0.0)
	gt.Equal(t, points[48].Hours, 72.0)
	for i := 1; i < len(points); i++ {
		gt.True(t, points[i].Retention <= points[i-1].Retention)
	}
}

func TestHalfLifeHours(t *testing.T) {
	gt.Equal(t, memory.HalfLifeHours(&model.Topic{Vulnerability: 10}), 4.8)
	gt.Equal(t, memory.HalfLifeHours(&model.Topic{Vulnerability: 2}), 24.0)
	// Below the divisor floor the half-life stays at 24h.
	gt.Equal(t, memory.HalfLifeHours(&model.Topic{Vulnerability: 1}), 24.0)
}

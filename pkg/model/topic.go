package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type TopicID string

// NewTopicID generates a new unique TopicID
func NewTopicID() TopicID {
	return TopicID(uuid.New().String())
}

// Topic is a unit of study the learner can be vulnerable in.
// Difficulty and ExamWeight are static after mapping; Vulnerability is
// recomputed from recent answer history by the session store.
type Topic struct {
	ID              TopicID
	Name            string
	Category        string
	Difficulty      int // 1-10
	Vulnerability   int // 1-10
	ExamWeight      int // 1-10
	Connections     []TopicID
	FailureMode     string
	KeyConceptCount int

	LastReviewedAt *time.Time // nil means never reviewed
	ReviewCount    int
}

// Validate checks if the topic is consistent
func (t *Topic) Validate() error {
	if t.ID == "" {
		return goerr.New("topic id is empty")
	}
	if t.Name == "" {
		return goerr.New("topic name is empty", goerr.V("id", t.ID))
	}
	if t.Difficulty < 1 || t.Difficulty > 10 {
		return goerr.New("topic difficulty out of range", goerr.V("id", t.ID), goerr.V("difficulty", t.Difficulty))
	}
	if t.Vulnerability < 1 || t.Vulnerability > 10 {
		return goerr.New("topic vulnerability out of range", goerr.V("id", t.ID), goerr.V("vulnerability", t.Vulnerability))
	}
	if t.ExamWeight < 1 || t.ExamWeight > 10 {
		return goerr.New("topic exam weight out of range", goerr.V("id", t.ID), goerr.V("examWeight", t.ExamWeight))
	}
	if t.ReviewCount < 0 {
		return goerr.New("topic review count is negative", goerr.V("id", t.ID))
	}
	return nil
}

// Clone returns a deep copy of the topic
func (t *Topic) Clone() *Topic {
	clone := *t
	if t.Connections != nil {
		clone.Connections = make([]TopicID, len(t.Connections))
		copy(clone.Connections, t.Connections)
	}
	if t.LastReviewedAt != nil {
		ts := *t.LastReviewedAt
		clone.LastReviewedAt = &ts
	}
	return &clone
}

package model

import (
	"time"
)

type Role string

const (
	RoleLearner      Role = "learner"
	RoleOrchestrator Role = "orchestrator"
	RoleCoach        Role = "coach"
)

// HistoryRecord is one immutable answered-question fact. Records are
// append-only and never mutated or deleted.
type HistoryRecord struct {
	TopicID    TopicID
	Correct    bool
	Timestamp  time.Time
	Difficulty int // difficulty of the question actually answered, 1-10
}

// ChatMessage is one turn in the orchestrator conversation
type ChatMessage struct {
	Role      Role
	Text      string
	Routing   *Decision // set on orchestrator routing messages
	CoachNote string
	Timestamp time.Time
}

// ExamResult summarizes one completed exam attempt
type ExamResult struct {
	TopicIDs []TopicID
	Correct  []bool // per-question correctness, same order as TopicIDs
	Score    int    // number of correct answers
	TakenAt  time.Time
}

// Session is the aggregate root. Exactly one session is live at a time; it
// is created once and mutated only through the session store's actions.
type Session struct {
	LearnerLabel     string
	RawCourseInput   string
	ShadowAssessment string
	Topics           []*Topic
	History          []HistoryRecord
	ChatLog          []ChatMessage
	ExamResults      []ExamResult
	TotalXP          int
}

// Topic returns the topic with the given id, or nil if it does not exist
func (s *Session) Topic(id TopicID) *Topic {
	for _, t := range s.Topics {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TopicHistory returns the history records for one topic in append order
func (s *Session) TopicHistory(id TopicID) []HistoryRecord {
	var records []HistoryRecord
	for _, h := range s.History {
		if h.TopicID == id {
			records = append(records, h)
		}
	}
	return records
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	clone := *s

	clone.Topics = make([]*Topic, len(s.Topics))
	for i, t := range s.Topics {
		clone.Topics[i] = t.Clone()
	}

	clone.History = make([]HistoryRecord, len(s.History))
	copy(clone.History, s.History)

	clone.ChatLog = make([]ChatMessage, len(s.ChatLog))
	copy(clone.ChatLog, s.ChatLog)

	clone.ExamResults = make([]ExamResult, len(s.ExamResults))
	for i, r := range s.ExamResults {
		cr := r
		cr.TopicIDs = make([]TopicID, len(r.TopicIDs))
		copy(cr.TopicIDs, r.TopicIDs)
		cr.Correct = make([]bool, len(r.Correct))
		copy(cr.Correct, r.Correct)
		clone.ExamResults[i] = cr
	}

	return &clone
}

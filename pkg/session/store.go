// Package session owns the live Session aggregate. All mutation goes
// through Apply with one of the five actions; every other component reads
// through snapshots and derived views only.
package session

import (
	"math"
	"sync"
	"time"

	"github.com/m-mizutani/harrier/pkg/model"
)

// XP rules: a correct answer earns 10 + difficulty*4, an incorrect answer
// earns flat participation credit. TotalXP never decreases.
const (
	xpCorrectBase       = 10
	xpCorrectPerLevel   = 4
	xpIncorrect         = 2
	vulnerabilityWindow = 6
)

// Action is one of the five session mutations. Values of any other type
// implementing the interface are ignored by the reducer.
type Action interface {
	sessionAction()
}

// InitPayload is the session bootstrap payload produced by topic mapping
type InitPayload struct {
	LearnerLabel     string
	RawCourseInput   string
	ShadowAssessment string
	Topics           []*model.Topic
}

// Init merges the bootstrap payload into the session. Used exactly once at
// session start.
type Init struct {
	Payload InitPayload
}

// SetTopics replaces the topic collection wholesale (after re-assessment)
type SetTopics struct {
	Topics []*model.Topic
}

// Record appends one answered-question fact and updates the topic it names.
// A Record naming an unknown topic still appends history and earns XP; only
// the topic mutation is skipped.
type Record struct {
	TopicID    model.TopicID
	Correct    bool
	Difficulty int
}

// Chat appends a message to the chat log
type Chat struct {
	Message model.ChatMessage
}

// ExamResult appends a completed exam attempt summary
type ExamResult struct {
	Result model.ExamResult
}

func (Init) sessionAction()       {}
func (SetTopics) sessionAction()  {}
func (Record) sessionAction()     {}
func (Chat) sessionAction()       {}
func (ExamResult) sessionAction() {}

// Store holds the session and applies actions in submission order. Apply
// never fails: malformed actions degrade to partial or no effect.
type Store struct {
	mu      sync.Mutex
	session *model.Session
	clock   func() time.Time
}

type Option func(*Store)

// WithClock replaces the wall clock, for tests
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates a store holding an empty session
func New(opts ...Option) *Store {
	s := &Store{
		session: &model.Session{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply reduces one action into the session. The aggregate is replaced as a
// whole; readers holding earlier snapshots are unaffected.
func (s *Store) Apply(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = reduce(s.session, action, s.clock())
}

// Snapshot returns a deep copy of the current session
func (s *Store) Snapshot() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

func reduce(session *model.Session, action Action, now time.Time) *model.Session {
	next := session.Clone()

	switch a := action.(type) {
	case Init:
		next.LearnerLabel = a.Payload.LearnerLabel
		next.RawCourseInput = a.Payload.RawCourseInput
		next.ShadowAssessment = a.Payload.ShadowAssessment
		next.Topics = cloneTopics(a.Payload.Topics)

	case SetTopics:
		next.Topics = cloneTopics(a.Topics)

	case Record:
		next.History = append(next.History, model.HistoryRecord{
			TopicID:    a.TopicID,
			Correct:    a.Correct,
			Timestamp:  now,
			Difficulty: a.Difficulty,
		})
		if a.Correct {
			next.TotalXP += xpCorrectBase + a.Difficulty*xpCorrectPerLevel
		} else {
			next.TotalXP += xpIncorrect
		}

		if topic := next.Topic(a.TopicID); topic != nil {
			topic.Vulnerability = recomputeVulnerability(next.History, a.TopicID)
			ts := now
			topic.LastReviewedAt = &ts
			topic.ReviewCount++
		}

	case Chat:
		msg := a.Message
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		next.ChatLog = append(next.ChatLog, msg)

	case ExamResult:
		result := a.Result
		if result.TakenAt.IsZero() {
			result.TakenAt = now
		}
		next.ExamResults = append(next.ExamResults, result)

	default:
		// Unknown actions leave the session unchanged.
		return session
	}

	return next
}

// recomputeVulnerability derives vulnerability from the trailing window of
// records for one topic, most recent answers only. The recency bias is
// deliberate: a bounded window keeps the score responsive.
func recomputeVulnerability(history []model.HistoryRecord, topicID model.TopicID) int {
	var window []model.HistoryRecord
	for _, h := range history {
		if h.TopicID == topicID {
			window = append(window, h)
		}
	}
	if len(window) > vulnerabilityWindow {
		window = window[len(window)-vulnerabilityWindow:]
	}
	if len(window) == 0 {
		return 1
	}

	correct := 0
	for _, h := range window {
		if h.Correct {
			correct++
		}
	}
	ratio := float64(correct) / float64(len(window))

	v := int(math.Round(10 - ratio*7))
	if v < 1 {
		v = 1
	}
	if v > 10 {
		v = 10
	}
	return v
}

func cloneTopics(topics []*model.Topic) []*model.Topic {
	cloned := make([]*model.Topic, len(topics))
	for i, t := range topics {
		cloned[i] = t.Clone()
	}
	return cloned
}

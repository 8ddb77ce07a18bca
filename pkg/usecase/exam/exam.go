// Package exam runs the timed multi-topic simulation: one adversarial
// question per vulnerable topic, 90 seconds each, first answer per
// question sticks, and the attempt summary lands in the session.
package exam

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/memory"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/m-mizutani/harrier/pkg/session"
	"github.com/m-mizutani/harrier/pkg/utils/logging"
)

type Phase string

const (
	PhaseIntro    Phase = "intro"
	PhaseBuilding Phase = "building"
	PhaseRunning  Phase = "running"
	PhaseResults  Phase = "results"
)

const (
	topicCount         = 8
	secondsPerQuestion = 90
)

var (
	ErrNotRunning   = goerr.New("exam is not running")
	ErrNoTopics     = goerr.New("no topics available for an exam")
	ErrBuildFailed  = goerr.New("no exam questions could be generated")
	ErrInvalidIndex = goerr.New("question index out of range")
)

// Agent is the question source for exam builds
type Agent interface {
	AttackQuestion(ctx context.Context, input agent.QuestionInput) (*model.Question, error)
}

// Exam is one simulation attempt. The zero phase is Intro; Start builds
// the paper and begins the clock.
type Exam struct {
	mu    sync.Mutex
	agent Agent
	store *session.Store
	clock func() time.Time

	phase     Phase
	questions []*model.Question
	answers   map[int]model.Choice
	timeLeft  int
	result    *model.ExamResult
}

type Option func(*Exam)

// WithClock replaces the wall clock, for tests
func WithClock(clock func() time.Time) Option {
	return func(e *Exam) {
		e.clock = clock
	}
}

func New(a Agent, store *session.Store, opts ...Option) *Exam {
	e := &Exam{
		agent: a,
		store: store,
		clock: time.Now,
		phase: PhaseIntro,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exam) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Roster returns the topics the next Start would draw from, most urgent
// first, capped at the paper size.
func (e *Exam) Roster() []*model.Topic {
	ranked := memory.Rank(e.store.Snapshot().Topics, e.clock())
	if len(ranked) > topicCount {
		ranked = ranked[:topicCount]
	}
	return ranked
}

// Start builds the paper and begins the run. Question generation fans
// out per topic; topics whose generation fails are dropped so one bad
// response never sinks the whole exam. Zero usable questions aborts
// back to Intro.
func (e *Exam) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.phase != PhaseIntro {
		e.mu.Unlock()
		return goerr.New("exam not ready to start", goerr.V("phase", e.phase))
	}
	e.phase = PhaseBuilding
	e.mu.Unlock()

	snapshot := e.store.Snapshot()
	ranked := memory.Rank(snapshot.Topics, e.clock())
	if len(ranked) == 0 {
		e.abort()
		return goerr.Wrap(ErrNoTopics, "start aborted")
	}
	if len(ranked) > topicCount {
		ranked = ranked[:topicCount]
	}

	// Generated questions keep the urgency order regardless of which
	// request returns first.
	generated := make([]*model.Question, len(ranked))
	var wg sync.WaitGroup
	for i, topic := range ranked {
		wg.Add(1)
		go func(i int, topic *model.Topic) {
			defer wg.Done()
			q, err := e.agent.AttackQuestion(ctx, agent.QuestionInput{
				TopicID:       topic.ID,
				TopicName:     topic.Name,
				FailureMode:   topic.FailureMode,
				Vulnerability: topic.Vulnerability,
				CourseContext: snapshot.RawCourseInput,
			})
			if err != nil {
				logging.From(ctx).Warn("exam question dropped",
					"topic", topic.Name, "error", err)
				return
			}
			generated[i] = q
		}(i, topic)
	}
	wg.Wait()

	questions := make([]*model.Question, 0, len(generated))
	for _, q := range generated {
		if q != nil {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		e.abort()
		return goerr.Wrap(ErrBuildFailed, "start aborted")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.questions = questions
	e.answers = make(map[int]model.Choice, len(questions))
	e.timeLeft = len(questions) * secondsPerQuestion
	e.result = nil
	e.phase = PhaseRunning
	return nil
}

func (e *Exam) abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = PhaseIntro
}

// Questions returns the paper in presentation order
func (e *Exam) Questions() []*model.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.questions
}

// TimeLeft reports the remaining seconds
func (e *Exam) TimeLeft() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeLeft
}

// Answer grades question idx. The first answer per question is final;
// repeats are ignored. Answering the last open question ends the run.
func (e *Exam) Answer(idx int, choice model.Choice) error {
	if err := choice.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return goerr.Wrap(ErrNotRunning, "answer ignored")
	}
	if idx < 0 || idx >= len(e.questions) {
		return goerr.Wrap(ErrInvalidIndex, "answer ignored", goerr.V("index", idx))
	}
	if _, answered := e.answers[idx]; answered {
		return nil
	}

	e.answers[idx] = choice
	q := e.questions[idx]
	e.store.Apply(session.Record{
		TopicID:    q.TopicID,
		Correct:    choice == q.Correct,
		Difficulty: q.Difficulty,
	})

	if len(e.answers) == len(e.questions) {
		e.finishLocked()
	}
	return nil
}

// Tick advances the countdown by one second. At zero the exam ends with
// every open question counted wrong.
func (e *Exam) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return
	}
	e.timeLeft--
	if e.timeLeft <= 0 {
		e.timeLeft = 0
		e.finishLocked()
	}
}

// RunTimer drives Tick once per second until the run ends or ctx is
// cancelled. Meant to be launched alongside Start's return.
func (e *Exam) RunTimer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
			if e.Phase() != PhaseRunning {
				return
			}
		}
	}
}

func (e *Exam) finishLocked() {
	correct := make([]bool, len(e.questions))
	topicIDs := make([]model.TopicID, len(e.questions))
	score := 0
	for i, q := range e.questions {
		topicIDs[i] = q.TopicID
		if choice, ok := e.answers[i]; ok && choice == q.Correct {
			correct[i] = true
			score++
		}
	}

	result := model.ExamResult{
		TopicIDs: topicIDs,
		Correct:  correct,
		Score:    score,
		TakenAt:  e.clock(),
	}
	e.result = &result
	e.phase = PhaseResults

	e.store.Apply(session.ExamResult{Result: result})
}

// Result returns the attempt summary, nil before Results
func (e *Exam) Result() *model.ExamResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Restart returns a finished exam to Intro, ready for another Start
func (e *Exam) Restart() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseResults {
		return goerr.New("restart only applies to a finished exam")
	}
	e.phase = PhaseIntro
	e.questions = nil
	e.answers = nil
	e.timeLeft = 0
	e.result = nil
	return nil
}

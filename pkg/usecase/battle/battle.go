// Package battle runs the adversarial drill loop: one hard question at a
// time against a single topic, with the answer recorded the moment it is
// given and an optional Socratic probe after the reveal.
package battle

import (
	"context"
	"fmt"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/m-mizutani/harrier/pkg/session"
)

type State string

const (
	StateLoading   State = "loading"
	StatePresented State = "presented"
	StateRevealed  State = "revealed"
)

var (
	ErrNoQuestion     = goerr.New("no question presented")
	ErrNotYetAnswered = goerr.New("question not answered yet")
)

// Agent is the subset of prompt roles a battle needs
type Agent interface {
	AttackQuestion(ctx context.Context, input agent.QuestionInput) (*model.Question, error)
	SocraticReply(ctx context.Context, input agent.DialogueInput) (string, error)
}

// Battle drills one topic. Safe for use from one goroutine driving the
// loop plus observers calling Score and CurrentQuestion.
type Battle struct {
	mu    sync.Mutex
	agent Agent
	store *session.Store
	topic *model.Topic

	state    State
	question *model.Question
	picked   model.Choice
	wasRight bool

	asked   int
	correct int
}

func New(a Agent, store *session.Store, topic *model.Topic) *Battle {
	return &Battle{
		agent: a,
		store: store,
		topic: topic,
		state: StateLoading,
	}
}

func (b *Battle) Topic() *model.Topic {
	return b.topic
}

func (b *Battle) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Next generates and presents the next question. Callable from Loading
// or Revealed; calling it with a question still open skips that question
// without recording anything.
func (b *Battle) Next(ctx context.Context) (*model.Question, error) {
	q, err := b.agent.AttackQuestion(ctx, agent.QuestionInput{
		TopicID:       b.topic.ID,
		TopicName:     b.topic.Name,
		FailureMode:   b.topic.FailureMode,
		Vulnerability: b.topic.Vulnerability,
	})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.question = q
	b.picked = ""
	b.state = StatePresented
	return q, nil
}

// CurrentQuestion returns the question on the table, nil in Loading
func (b *Battle) CurrentQuestion() *model.Question {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.question
}

// Answer grades the picked choice and records the fact. The first answer
// settles the question; repeats return the settled result and record
// nothing further.
func (b *Battle) Answer(choice model.Choice) (bool, error) {
	if err := choice.Validate(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateLoading:
		return false, goerr.Wrap(ErrNoQuestion, "answer before question")
	case StateRevealed:
		return b.wasRight, nil
	}

	correct := choice == b.question.Correct
	b.picked = choice
	b.wasRight = correct
	b.state = StateRevealed

	b.asked++
	if correct {
		b.correct++
	}

	b.store.Apply(session.Record{
		TopicID:    b.question.TopicID,
		Correct:    correct,
		Difficulty: b.question.Difficulty,
	})

	return correct, nil
}

// Probe asks the Socratic role to dig into the revealed question. Only
// available after the reveal so the dialogue cannot leak the answer.
func (b *Battle) Probe(ctx context.Context, utterance string) (string, error) {
	b.mu.Lock()
	if b.state != StateRevealed {
		b.mu.Unlock()
		return "", goerr.Wrap(ErrNotYetAnswered, "probe before reveal")
	}
	questionContext := fmt.Sprintf("%s (correct: %s, picked: %s)",
		b.question.Question, b.question.Correct, b.picked)
	b.mu.Unlock()

	return b.agent.SocraticReply(ctx, agent.DialogueInput{
		TopicName:       b.topic.Name,
		FailureMode:     b.topic.FailureMode,
		QuestionContext: questionContext,
		Utterance:       utterance,
	})
}

// Score reports this battle's running tally
func (b *Battle) Score() (correct, asked int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.correct, b.asked
}

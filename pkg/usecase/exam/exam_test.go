package exam_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/m-mizutani/harrier/pkg/session"
	"github.com/m-mizutani/harrier/pkg/usecase/exam"
)

type mockAgent struct {
	attackQuestionFunc func(ctx context.Context, input agent.QuestionInput) (*model.Question, error)
}

func (m *mockAgent) AttackQuestion(ctx context.Context, input agent.QuestionInput) (*model.Question, error) {
	return m.attackQuestionFunc(ctx, input)
}

func questionFor(input agent.QuestionInput) *model.Question {
	return &model.Question{
		Question:   fmt.Sprintf("Question about %s", input.TopicName),
		Options:    map[model.Choice]string{"A": "right", "B": "wrong", "C": "wrong", "D": "wrong"},
		Correct:    model.ChoiceA,
		Difficulty: 5,
		Concept:    input.TopicName,
		TopicID:    input.TopicID,
		TopicName:  input.TopicName,
	}
}

func newStore(topicCount int) *session.Store {
	topics := make([]*model.Topic, 0, topicCount)
	for i := 0; i < topicCount; i++ {
		topics = append(topics, &model.Topic{
			ID:            model.TopicID(fmt.Sprintf("t-%d", i)),
			Name:          fmt.Sprintf("Topic %d", i),
			Difficulty:    5,
			Vulnerability: 1 + i%10,
			ExamWeight:    5,
		})
	}

	store := session.New(session.WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	}))
	store.Apply(session.Init{Payload: session.InitPayload{Topics: topics}})
	return store
}

func newExam(store *session.Store) (*exam.Exam, *mockAgent) {
	mock := &mockAgent{
		attackQuestionFunc: func(_ context.Context, input agent.QuestionInput) (*model.Question, error) {
			return questionFor(input), nil
		},
	}
	e := exam.New(mock, store, exam.WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	}))
	return e, mock
}

func TestExamStartBuildsPaper(t *testing.T) {
	store := newStore(12)
	e, _ := newExam(store)
	gt.Equal(t, e.Phase(), exam.PhaseIntro)

	gt.NoError(t, e.Start(context.Background()))
	gt.Equal(t, e.Phase(), exam.PhaseRunning)

	// capped at the paper size even with more topics mapped
	questions := e.Questions()
	gt.Equal(t, len(questions), 8)
	gt.Equal(t, e.TimeLeft(), 8*90)

	// most urgent topics first
	roster := e.Roster()
	gt.Equal(t, len(roster), 8)
	gt.Equal(t, questions[0].TopicID, roster[0].ID)
}

func TestExamSilentlyDropsFailedQuestions(t *testing.T) {
	store := newStore(5)
	e, mock := newExam(store)

	mock.attackQuestionFunc = func(_ context.Context, input agent.QuestionInput) (*model.Question, error) {
		if input.TopicID == "t-2" {
			return nil, model.ErrNoDecision
		}
		return questionFor(input), nil
	}

	gt.NoError(t, e.Start(context.Background()))
	questions := e.Questions()
	gt.Equal(t, len(questions), 4)
	for _, q := range questions {
		gt.True(t, q.TopicID != "t-2")
	}
	gt.Equal(t, e.TimeLeft(), 4*90)
}

func TestExamAllQuestionsFailed(t *testing.T) {
	store := newStore(3)
	e, mock := newExam(store)

	mock.attackQuestionFunc = func(_ context.Context, _ agent.QuestionInput) (*model.Question, error) {
		return nil, model.ErrNoDecision
	}

	err := e.Start(context.Background())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, exam.ErrBuildFailed))
	gt.Equal(t, e.Phase(), exam.PhaseIntro)
}

func TestExamNoTopics(t *testing.T) {
	store := session.New()
	e, _ := newExam(store)

	err := e.Start(context.Background())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, exam.ErrNoTopics))
}

func TestExamAnswerFirstSticks(t *testing.T) {
	store := newStore(2)
	e, _ := newExam(store)
	gt.NoError(t, e.Start(context.Background()))

	gt.NoError(t, e.Answer(0, model.ChoiceB))
	// repeat answer on the same question is ignored
	gt.NoError(t, e.Answer(0, model.ChoiceA))

	snap := store.Snapshot()
	gt.Equal(t, len(snap.History), 1)
	gt.True(t, !snap.History[0].Correct)
}

func TestExamFinishesWhenAllAnswered(t *testing.T) {
	store := newStore(3)
	e, _ := newExam(store)
	gt.NoError(t, e.Start(context.Background()))

	gt.NoError(t, e.Answer(0, model.ChoiceA))
	gt.NoError(t, e.Answer(1, model.ChoiceB))
	gt.Equal(t, e.Phase(), exam.PhaseRunning)
	gt.NoError(t, e.Answer(2, model.ChoiceA))
	gt.Equal(t, e.Phase(), exam.PhaseResults)

	// score counts correct answers
	result := e.Result()
	gt.NotNil(t, result)
	gt.Equal(t, result.Score, 2)
	gt.Equal(t, result.Correct, []bool{true, false, true})

	snap := store.Snapshot()
	gt.Equal(t, len(snap.ExamResults), 1)
	gt.Equal(t, snap.ExamResults[0].Score, 2)
	// per-answer records were also kept
	gt.Equal(t, len(snap.History), 3)
}

func TestExamTimerExpiry(t *testing.T) {
	store := newStore(5)
	e, _ := newExam(store)
	gt.NoError(t, e.Start(context.Background()))
	gt.Equal(t, e.TimeLeft(), 450)

	for i := 0; i < 450; i++ {
		e.Tick()
	}

	gt.Equal(t, e.Phase(), exam.PhaseResults)
	gt.Equal(t, e.TimeLeft(), 0)

	// no answers given, score is zero
	result := e.Result()
	gt.NotNil(t, result)
	gt.Equal(t, result.Score, 0)
	for _, c := range result.Correct {
		gt.True(t, !c)
	}
}

func TestExamAnswerAfterExpiry(t *testing.T) {
	store := newStore(2)
	e, _ := newExam(store)
	gt.NoError(t, e.Start(context.Background()))

	for i := 0; i < 180; i++ {
		e.Tick()
	}
	gt.Equal(t, e.Phase(), exam.PhaseResults)

	err := e.Answer(0, model.ChoiceA)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, exam.ErrNotRunning))
}

func TestExamTickOutsideRunningIsNoOp(t *testing.T) {
	store := newStore(2)
	e, _ := newExam(store)

	e.Tick()
	gt.Equal(t, e.Phase(), exam.PhaseIntro)
	gt.Equal(t, e.TimeLeft(), 0)
}

func TestExamRestart(t *testing.T) {
	store := newStore(2)
	e, _ := newExam(store)
	gt.NoError(t, e.Start(context.Background()))

	// restart mid-run is rejected
	gt.Error(t, e.Restart())

	gt.NoError(t, e.Answer(0, model.ChoiceA))
	gt.NoError(t, e.Answer(1, model.ChoiceA))
	gt.Equal(t, e.Phase(), exam.PhaseResults)

	gt.NoError(t, e.Restart())
	gt.Equal(t, e.Phase(), exam.PhaseIntro)
	gt.Nil(t, e.Result())

	// a second attempt builds a fresh paper
	gt.NoError(t, e.Start(context.Background()))
	gt.Equal(t, len(e.Questions()), 2)
	gt.Equal(t, e.TimeLeft(), 180)
}

func TestExamStartFromResultsRequiresRestart(t *testing.T) {
	store := newStore(2)
	e, _ := newExam(store)
	gt.NoError(t, e.Start(context.Background()))

	gt.NoError(t, e.Answer(0, model.ChoiceA))
	gt.NoError(t, e.Answer(1, model.ChoiceA))
	gt.Equal(t, e.Phase(), exam.PhaseResults)

	// no backward transition without an explicit restart
	gt.Error(t, e.Start(context.Background()))
	gt.Equal(t, e.Phase(), exam.PhaseResults)
	gt.NotNil(t, e.Result())

	gt.NoError(t, e.Restart())
	gt.NoError(t, e.Start(context.Background()))
	gt.Equal(t, e.Phase(), exam.PhaseRunning)
}

func TestExamRunTimerStopsOnCancel(t *testing.T) {
	store := newStore(2)
	e, _ := newExam(store)
	gt.NoError(t, e.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.RunTimer(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer goroutine did not stop on cancel")
	}
}

package dispatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/m-mizutani/harrier/pkg/policy"
	"github.com/m-mizutani/harrier/pkg/session"
	"github.com/m-mizutani/harrier/pkg/usecase/dispatch"
)

type mockAgent struct {
	decideFunc      func(ctx context.Context, input agent.DecideInput) (*model.Decision, error)
	readLearnerFunc func(ctx context.Context, input agent.CoachInput) (*model.CoachReading, error)
	mapTopicsFunc   func(ctx context.Context, input agent.MapInput) (*model.TopicMap, error)
}

func (m *mockAgent) Decide(ctx context.Context, input agent.DecideInput) (*model.Decision, error) {
	return m.decideFunc(ctx, input)
}

func (m *mockAgent) ReadLearner(ctx context.Context, input agent.CoachInput) (*model.CoachReading, error) {
	return m.readLearnerFunc(ctx, input)
}

func (m *mockAgent) MapTopics(ctx context.Context, input agent.MapInput) (*model.TopicMap, error) {
	return m.mapTopicsFunc(ctx, input)
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	reviewed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := session.New(session.WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	}))
	store.Apply(session.Init{Payload: session.InitPayload{
		LearnerLabel:   "Operator",
		RawCourseInput: "thermodynamics midterm",
		Topics: []*model.Topic{
			{ID: "fin", Name: "Fin Analysis", Difficulty: 6, Vulnerability: 9, ExamWeight: 8, LastReviewedAt: &reviewed},
			{ID: "thermo", Name: "Heat Engines", Difficulty: 5, Vulnerability: 3, ExamWeight: 5},
		},
	}})
	return store
}

func TestDispatchRoutesToNemesis(t *testing.T) {
	store := newStore(t)
	mock := &mockAgent{
		decideFunc: func(_ context.Context, input agent.DecideInput) (*model.Decision, error) {
			gt.Equal(t, input.Utterance, "quiz me")
			gt.Equal(t, input.LearnerLabel, "Operator")
			return &model.Decision{
				Agent:     model.AgentNemesis,
				TopicID:   "fin",
				Reasoning: "fin analysis is decaying fastest",
				Urgency:   model.UrgencyHigh,
			}, nil
		},
	}

	d := dispatch.New(mock, store)
	outcome, err := d.Dispatch(context.Background(), "quiz me")
	gt.NoError(t, err)
	gt.Equal(t, outcome.Decision.Agent, model.AgentNemesis)
	gt.NotNil(t, outcome.Topic)
	gt.Equal(t, outcome.Topic.ID, model.TopicID("fin"))

	// learner message then routing message
	snap := store.Snapshot()
	gt.Equal(t, len(snap.ChatLog), 2)
	gt.Equal(t, snap.ChatLog[0].Role, model.RoleLearner)
	gt.Equal(t, snap.ChatLog[0].Text, "quiz me")
	gt.Equal(t, snap.ChatLog[1].Role, model.RoleOrchestrator)
	gt.NotNil(t, snap.ChatLog[1].Routing)
	gt.Equal(t, snap.ChatLog[1].Routing.Agent, model.AgentNemesis)
}

func TestDispatchFailureLeavesSessionUntouched(t *testing.T) {
	store := newStore(t)
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			return nil, model.ErrNoDecision
		},
	}

	d := dispatch.New(mock, store)
	_, err := d.Dispatch(context.Background(), "hello")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNoDecision))

	snap := store.Snapshot()
	gt.Equal(t, len(snap.ChatLog), 0)
}

func TestDispatchUnknownTopicFallsBackToMostUrgent(t *testing.T) {
	store := newStore(t)
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			return &model.Decision{
				Agent:     model.AgentReview,
				TopicID:   "ghost",
				Reasoning: "review time",
				Urgency:   model.UrgencyMedium,
			}, nil
		},
	}

	d := dispatch.New(mock, store)
	outcome, err := d.Dispatch(context.Background(), "something gentle")
	gt.NoError(t, err)
	// "fin" has the highest urgency of the two mapped topics
	gt.NotNil(t, outcome.Topic)
	gt.Equal(t, outcome.Topic.ID, model.TopicID("fin"))
}

func TestDispatchBusy(t *testing.T) {
	store := newStore(t)

	started := make(chan struct{})
	release := make(chan struct{})
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			close(started)
			<-release
			return &model.Decision{
				Agent:     model.AgentCoach,
				Reasoning: "check in",
				Urgency:   model.UrgencyLow,
			}, nil
		},
		readLearnerFunc: func(_ context.Context, _ agent.CoachInput) (*model.CoachReading, error) {
			return nil, model.ErrNoDecision
		},
	}

	d := dispatch.New(mock, store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := d.Dispatch(context.Background(), "first")
		gt.NoError(t, err)
	}()

	<-started
	_, err := d.Dispatch(context.Background(), "second")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, dispatch.ErrBusy))

	close(release)
	wg.Wait()

	// the dropped utterance never reached the chat log
	snap := store.Snapshot()
	for _, msg := range snap.ChatLog {
		gt.True(t, msg.Text != "second")
	}
}

func TestDispatchCoachReading(t *testing.T) {
	store := newStore(t)
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			return &model.Decision{
				Agent:     model.AgentCoach,
				Reasoning: "learner sounds worn out",
				CoachNote: "fatigue signals",
				Urgency:   model.UrgencyLow,
			}, nil
		},
		readLearnerFunc: func(_ context.Context, input agent.CoachInput) (*model.CoachReading, error) {
			gt.Equal(t, input.StateHint, "fatigue signals")
			return &model.CoachReading{
				State:          model.CoachStateTired,
				Intensity:      3,
				Message:        "You earned a pause. The schedule can wait twenty minutes.",
				Observation:    "Response pace dropped by half.",
				Recommendation: model.RecommendBreak,
				EnergyLevel:    model.EnergyLow,
			}, nil
		},
	}

	d := dispatch.New(mock, store)
	outcome, err := d.Dispatch(context.Background(), "so tired of this")
	gt.NoError(t, err)
	gt.NotNil(t, outcome.Coach)
	gt.Equal(t, outcome.Coach.State, model.CoachStateTired)

	snap := store.Snapshot()
	gt.Equal(t, len(snap.ChatLog), 3)
	gt.Equal(t, snap.ChatLog[2].Role, model.RoleCoach)
	gt.True(t, snap.ChatLog[2].Text != "")
}

func TestDispatchCoachReadingFailureDoesNotFailRouting(t *testing.T) {
	store := newStore(t)
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			return &model.Decision{
				Agent:     model.AgentCoach,
				Reasoning: "check in",
				Urgency:   model.UrgencyLow,
			}, nil
		},
		readLearnerFunc: func(_ context.Context, _ agent.CoachInput) (*model.CoachReading, error) {
			return nil, model.ErrNoDecision
		},
	}

	d := dispatch.New(mock, store)
	outcome, err := d.Dispatch(context.Background(), "ugh")
	gt.NoError(t, err)
	gt.Equal(t, outcome.Decision.Agent, model.AgentCoach)
	gt.Nil(t, outcome.Coach)

	// routing messages are present, no coach line
	snap := store.Snapshot()
	gt.Equal(t, len(snap.ChatLog), 2)
}

func TestDispatchShadowReplacesTopics(t *testing.T) {
	store := newStore(t)
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			return &model.Decision{
				Agent:     model.AgentShadow,
				Reasoning: "course scope changed",
				Urgency:   model.UrgencyMedium,
			}, nil
		},
		mapTopicsFunc: func(_ context.Context, input agent.MapInput) (*model.TopicMap, error) {
			gt.Equal(t, input.RawCourseInput, "thermodynamics midterm")
			return &model.TopicMap{
				Topics: []*model.Topic{
					{ID: "entropy", Name: "Entropy", Difficulty: 7, Vulnerability: 6, ExamWeight: 9},
				},
				Assessment: "narrowed to the second law",
			}, nil
		},
	}

	d := dispatch.New(mock, store)
	outcome, err := d.Dispatch(context.Background(), "remap my course")
	gt.NoError(t, err)
	gt.NotNil(t, outcome.TopicMap)

	snap := store.Snapshot()
	gt.Equal(t, len(snap.Topics), 1)
	gt.Equal(t, snap.Topics[0].ID, model.TopicID("entropy"))
}

func TestDispatchShadowFailureLeavesSessionUntouched(t *testing.T) {
	store := newStore(t)
	before := store.Snapshot()
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			return &model.Decision{
				Agent:     model.AgentShadow,
				Reasoning: "course scope changed",
				Urgency:   model.UrgencyMedium,
			}, nil
		},
		mapTopicsFunc: func(_ context.Context, _ agent.MapInput) (*model.TopicMap, error) {
			return nil, model.ErrNoDecision
		},
	}

	d := dispatch.New(mock, store)
	_, err := d.Dispatch(context.Background(), "remap my course")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNoDecision))

	// no partial turn: neither chat messages nor topic changes recorded
	snap := store.Snapshot()
	gt.Equal(t, len(snap.ChatLog), 0)
	gt.Equal(t, len(snap.Topics), len(before.Topics))
	for i, topic := range snap.Topics {
		gt.Equal(t, topic.ID, before.Topics[i].ID)
	}
}

func TestDispatchPolicyRedirect(t *testing.T) {
	ctx := context.Background()

	tmpDir := t.TempDir()
	routingPolicy := `package routing

redirect := "coach" if {
	input.decision.agent == "exam"
	input.session.answered == 0
}
`
	gt.NoError(t, os.WriteFile(filepath.Join(tmpDir, "routing.rego"), []byte(routingPolicy), 0644))

	gate, err := policy.New(ctx, tmpDir)
	gt.NoError(t, err)

	store := newStore(t)
	mock := &mockAgent{
		decideFunc: func(_ context.Context, _ agent.DecideInput) (*model.Decision, error) {
			return &model.Decision{
				Agent:     model.AgentExam,
				Reasoning: "exam requested",
				Urgency:   model.UrgencyHigh,
			}, nil
		},
		readLearnerFunc: func(_ context.Context, _ agent.CoachInput) (*model.CoachReading, error) {
			return nil, model.ErrNoDecision
		},
	}

	d := dispatch.New(mock, store, dispatch.WithPolicyGate(gate))
	outcome, err := d.Dispatch(ctx, "start the exam")
	gt.NoError(t, err)
	gt.Equal(t, outcome.Decision.Agent, model.AgentCoach)
}

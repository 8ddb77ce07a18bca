// Package dispatch routes learner utterances to one of the six agents.
// One dispatch runs at a time; the chat log is only mutated after a
// decision has been validated and cleared by policy.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/memory"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/m-mizutani/harrier/pkg/policy"
	"github.com/m-mizutani/harrier/pkg/session"
	"github.com/m-mizutani/harrier/pkg/utils/logging"
)

// ErrBusy is returned when a dispatch is already in flight. The caller
// should drop the utterance and retry after the current one settles.
var ErrBusy = goerr.New("dispatch already in flight")

// Agent is the subset of prompt roles the dispatcher itself calls
type Agent interface {
	Decide(ctx context.Context, input agent.DecideInput) (*model.Decision, error)
	ReadLearner(ctx context.Context, input agent.CoachInput) (*model.CoachReading, error)
	MapTopics(ctx context.Context, input agent.MapInput) (*model.TopicMap, error)
}

// Outcome is what a successful dispatch resolved to. Topic is the target
// for question and dialogue agents, already fallen back to the most
// urgent topic when the decision named none.
type Outcome struct {
	Decision *model.Decision
	Topic    *model.Topic
	Coach    *model.CoachReading
	TopicMap *model.TopicMap
}

type Dispatcher struct {
	agent Agent
	store *session.Store
	gate  *policy.Gate
	clock func() time.Time
	busy  atomic.Bool
}

type Option func(*Dispatcher)

// WithClock replaces the wall clock, for tests
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

// WithPolicyGate installs a routing policy gate
func WithPolicyGate(gate *policy.Gate) Option {
	return func(d *Dispatcher) {
		d.gate = gate
	}
}

func New(a Agent, store *session.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		agent: a,
		store: store,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch routes one utterance. On any decision failure the session is
// left exactly as it was; on success the learner message and the routing
// message are appended and agent-specific side effects applied.
func (d *Dispatcher) Dispatch(ctx context.Context, utterance string) (*Outcome, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return nil, goerr.Wrap(ErrBusy, "utterance dropped", goerr.V("utterance", utterance))
	}
	defer d.busy.Store(false)

	snapshot := d.store.Snapshot()
	stats := session.ComputeStats(snapshot)
	now := d.clock()

	decision, err := d.agent.Decide(ctx, agent.DecideInput{
		LearnerLabel:  snapshot.LearnerLabel,
		Utterance:     utterance,
		Answered:      stats.Answered,
		Accuracy:      stats.Accuracy,
		TotalXP:       stats.TotalXP,
		TopicsSummary: summarizeTopics(snapshot.Topics, now),
		MostUrgent:    mostUrgentName(snapshot.Topics, now),
	})
	if err != nil {
		return nil, err
	}

	decision, err = d.gate.Check(ctx, decision, policy.SessionSummary{
		Answered: stats.Answered,
		Accuracy: stats.Accuracy,
		TotalXP:  stats.TotalXP,
	})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Decision: decision,
		Topic:    resolveTopic(snapshot, decision, now),
	}

	// The shadow re-map is generated before the turn is recorded so a
	// failed re-assessment leaves no partial turn behind.
	if decision.Agent == model.AgentShadow {
		tm, err := d.mapTopics(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		outcome.TopicMap = tm
	}

	d.store.Apply(session.Chat{Message: model.ChatMessage{
		Role:      model.RoleLearner,
		Text:      utterance,
		Timestamp: now,
	}})
	d.store.Apply(session.Chat{Message: model.ChatMessage{
		Role:      model.RoleOrchestrator,
		Text:      decision.Reasoning,
		Routing:   decision,
		CoachNote: decision.CoachNote,
		Timestamp: now,
	}})

	switch decision.Agent {
	case model.AgentCoach:
		d.runCoach(ctx, utterance, stats, snapshot.LearnerLabel, outcome)

	case model.AgentShadow:
		d.store.Apply(session.SetTopics{Topics: outcome.TopicMap.Topics})
	}

	return outcome, nil
}

// runCoach performs the empathy sub-call. A failed reading never fails
// the dispatch; the routing stands and the learner gets no coach line.
func (d *Dispatcher) runCoach(ctx context.Context, utterance string, stats session.Stats, label string, outcome *Outcome) {
	reading, err := d.agent.ReadLearner(ctx, agent.CoachInput{
		LearnerLabel: label,
		Utterance:    utterance,
		StateHint:    outcome.Decision.CoachNote,
		Answered:     stats.Answered,
		Accuracy:     stats.Accuracy,
		TotalXP:      stats.TotalXP,
	})
	if err != nil {
		logging.From(ctx).Warn("coach reading failed", "error", err)
		return
	}

	outcome.Coach = reading
	d.store.Apply(session.Chat{Message: model.ChatMessage{
		Role:      model.RoleCoach,
		Text:      reading.Message,
		Timestamp: d.clock(),
	}})
}

// mapTopics re-maps the course from the stored input and answer history
func (d *Dispatcher) mapTopics(ctx context.Context, snapshot *model.Session) (*model.TopicMap, error) {
	tm, err := d.agent.MapTopics(ctx, agent.MapInput{
		LearnerLabel:   snapshot.LearnerLabel,
		RawCourseInput: snapshot.RawCourseInput,
		HistorySummary: summarizeHistory(snapshot),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "shadow re-assessment failed")
	}
	return tm, nil
}

// resolveTopic maps the decision's topic id onto a live topic, falling
// back to the most urgent topic when the id is absent or unknown.
func resolveTopic(snapshot *model.Session, decision *model.Decision, now time.Time) *model.Topic {
	if decision.TopicID != "" {
		if topic := snapshot.Topic(decision.TopicID); topic != nil {
			return topic
		}
	}
	return memory.MostUrgent(snapshot.Topics, now)
}

func summarizeTopics(topics []*model.Topic, now time.Time) string {
	if len(topics) == 0 {
		return "(no topics mapped yet)"
	}

	lines := make([]string, 0, len(topics))
	for _, t := range memory.Rank(topics, now) {
		lines = append(lines, fmt.Sprintf("- %s [id=%s] retention=%d%% vulnerability=%d/10 urgency=%d",
			t.Name, t.ID, memory.Retention(t, now), t.Vulnerability, memory.Urgency(t, now)))
	}
	return strings.Join(lines, "\n")
}

func mostUrgentName(topics []*model.Topic, now time.Time) string {
	if t := memory.MostUrgent(topics, now); t != nil {
		return t.Name
	}
	return "(none)"
}

func summarizeHistory(snapshot *model.Session) string {
	if len(snapshot.History) == 0 {
		return ""
	}

	lines := make([]string, 0, len(snapshot.Topics))
	for _, t := range snapshot.Topics {
		accuracy, answered := session.TopicAccuracy(snapshot, t.ID)
		if answered == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d%% over %d answers", t.Name, accuracy, answered))
	}
	return strings.Join(lines, "\n")
}

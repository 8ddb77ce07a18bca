package model

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrNoDecision covers every way the external service can fail to
	// produce a usable response: transport failure, empty body, and
	// structurally invalid data all collapse into this class.
	ErrNoDecision = goerr.New("no decision from model")
)

type AgentKind string

const (
	AgentNemesis  AgentKind = "nemesis"
	AgentSocrates AgentKind = "socrates"
	AgentCoach    AgentKind = "coach"
	AgentExam     AgentKind = "exam"
	AgentReview   AgentKind = "review"
	AgentShadow   AgentKind = "shadow"
)

// Validate checks if the agent kind is one of the six routable agents
func (a AgentKind) Validate() error {
	switch a {
	case AgentNemesis, AgentSocrates, AgentCoach, AgentExam, AgentReview, AgentShadow:
		return nil
	default:
		return goerr.Wrap(ErrNoDecision, "invalid agent kind", goerr.V("agent", a))
	}
}

type UrgencyTier string

const (
	UrgencyHigh   UrgencyTier = "high"
	UrgencyMedium UrgencyTier = "medium"
	UrgencyLow    UrgencyTier = "low"
)

// Validate checks if the urgency tier is legal
func (u UrgencyTier) Validate() error {
	switch u {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
		return nil
	default:
		return goerr.Wrap(ErrNoDecision, "invalid urgency tier", goerr.V("urgency", u))
	}
}

// Decision is a validated orchestrator routing decision. TopicID may be
// empty or reference an unknown topic; the dispatcher substitutes the most
// urgent topic in that case.
type Decision struct {
	Agent     AgentKind   `json:"agent"`
	TopicID   TopicID     `json:"topicId"`
	Reasoning string      `json:"reasoning"`
	CoachNote string      `json:"coachNote"`
	Urgency   UrgencyTier `json:"urgency"`
}

// Validate checks the decision against the agent-decision shape
func (d *Decision) Validate() error {
	if err := d.Agent.Validate(); err != nil {
		return err
	}
	if err := d.Urgency.Validate(); err != nil {
		return err
	}
	return nil
}

type CoachState string

const (
	CoachStateFocused       CoachState = "focused"
	CoachStateTired         CoachState = "tired"
	CoachStateAnxious       CoachState = "anxious"
	CoachStateFrustrated    CoachState = "frustrated"
	CoachStateAvoidant      CoachState = "avoidant"
	CoachStateOverconfident CoachState = "overconfident"
)

func (c CoachState) Validate() error {
	switch c {
	case CoachStateFocused, CoachStateTired, CoachStateAnxious,
		CoachStateFrustrated, CoachStateAvoidant, CoachStateOverconfident:
		return nil
	default:
		return goerr.Wrap(ErrNoDecision, "invalid coach state", goerr.V("state", c))
	}
}

type CoachRecommendation string

const (
	RecommendNemesis  CoachRecommendation = "nemesis"
	RecommendSocrates CoachRecommendation = "socrates"
	RecommendReview   CoachRecommendation = "review"
	RecommendBreak    CoachRecommendation = "break"
	RecommendExam     CoachRecommendation = "exam"
)

func (r CoachRecommendation) Validate() error {
	switch r {
	case RecommendNemesis, RecommendSocrates, RecommendReview, RecommendBreak, RecommendExam:
		return nil
	default:
		return goerr.Wrap(ErrNoDecision, "invalid coach recommendation", goerr.V("recommendation", r))
	}
}

type EnergyLevel string

const (
	EnergyHigh   EnergyLevel = "high"
	EnergyMedium EnergyLevel = "medium"
	EnergyLow    EnergyLevel = "low"
)

func (e EnergyLevel) Validate() error {
	switch e {
	case EnergyHigh, EnergyMedium, EnergyLow:
		return nil
	default:
		return goerr.Wrap(ErrNoDecision, "invalid energy level", goerr.V("energy", e))
	}
}

// CoachReading is the coach agent's assessment of the learner's state
type CoachReading struct {
	State          CoachState          `json:"state"`
	Intensity      int                 `json:"intensity"` // 1-5
	Message        string              `json:"message"`
	Observation    string              `json:"observation"`
	Recommendation CoachRecommendation `json:"recommendation"`
	EnergyLevel    EnergyLevel         `json:"energyLevel"`
}

// Validate checks the reading against the coach-reading shape
func (c *CoachReading) Validate() error {
	if err := c.State.Validate(); err != nil {
		return err
	}
	if c.Intensity < 1 || c.Intensity > 5 {
		return goerr.Wrap(ErrNoDecision, "coach intensity out of range", goerr.V("intensity", c.Intensity))
	}
	if c.Message == "" {
		return goerr.Wrap(ErrNoDecision, "coach message is empty")
	}
	if err := c.Recommendation.Validate(); err != nil {
		return err
	}
	if err := c.EnergyLevel.Validate(); err != nil {
		return err
	}
	return nil
}

// Package agent builds prompts for the six external prompt roles, invokes
// the generation service, and validates what comes back. Empty bodies,
// malformed structures, and transport failures all collapse into errors
// matching model.ErrNoDecision; callers never see a partial result.
package agent

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/adapter"
	"github.com/m-mizutani/harrier/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/orchestrator.md
var orchestratorPromptRaw string

//go:embed prompt/shadow.md
var shadowPromptRaw string

//go:embed prompt/nemesis.md
var nemesisPromptRaw string

//go:embed prompt/review.md
var reviewPromptRaw string

//go:embed prompt/socrates.md
var socratesPromptRaw string

//go:embed prompt/coach.md
var coachPromptRaw string

var (
	orchestratorTmpl = template.Must(template.New("orchestrator").Parse(orchestratorPromptRaw))
	shadowTmpl       = template.Must(template.New("shadow").Parse(shadowPromptRaw))
	nemesisTmpl      = template.Must(template.New("nemesis").Parse(nemesisPromptRaw))
	reviewTmpl       = template.Must(template.New("review").Parse(reviewPromptRaw))
	socratesTmpl     = template.Must(template.New("socrates").Parse(socratesPromptRaw))
	coachTmpl        = template.Must(template.New("coach").Parse(coachPromptRaw))
)

// Difficulty bands requested from the question generators
const (
	BandAttack = "hard"
	BandReview = "easy-medium"
)

// Review questions stay in the 1-5 difficulty range
const reviewMaxDifficulty = 5

// Output budgets per role, in tokens
const (
	decideMaxTokens   int32 = 1200
	mapMaxTokens      int32 = 2600
	questionMaxTokens int32 = 1200
	coachMaxTokens    int32 = 1000
	dialogueMaxTokens int32 = 800
)

// Generator turns typed requests into prompt-role calls
type Generator struct {
	gemini adapter.Gemini
}

func New(gemini adapter.Gemini) *Generator {
	return &Generator{gemini: gemini}
}

// DecideInput is the compact session summary the orchestrator reasons over
type DecideInput struct {
	LearnerLabel  string
	Utterance     string
	Answered      int
	Accuracy      int
	TotalXP       int
	TopicsSummary string
	MostUrgent    string
}

// Decide asks the orchestrator role for a routing decision
func (g *Generator) Decide(ctx context.Context, input DecideInput) (*model.Decision, error) {
	var decision model.Decision
	if err := g.generateJSON(ctx, orchestratorTmpl, input, decisionSchema, decideMaxTokens, &decision); err != nil {
		return nil, err
	}
	if err := decision.Validate(); err != nil {
		return nil, err
	}
	return &decision, nil
}

// Material is one extracted study document
type Material struct {
	Name string
	Text string
}

// MapInput is the topic-mapping request context
type MapInput struct {
	LearnerLabel   string
	RawCourseInput string
	Materials      []Material
	HistorySummary string
}

type topicMapData struct {
	Topics []struct {
		ID              string   `json:"id"`
		Name            string   `json:"name"`
		Category        string   `json:"category"`
		Difficulty      int      `json:"difficulty"`
		Vulnerability   int      `json:"vulnerability"`
		ExamWeight      int      `json:"examWeight"`
		Connections     []string `json:"connections"`
		FailureMode     string   `json:"failureMode"`
		KeyConceptCount int      `json:"keyConceptCount"`
	} `json:"topics"`
	Assessment string `json:"assessment"`
}

// MapTopics asks the shadow role to map a course into topics. Numeric
// scores are clamped into their legal ranges; topics without a name are
// dropped; missing ids are generated. An empty usable set is a failure.
func (g *Generator) MapTopics(ctx context.Context, input MapInput) (*model.TopicMap, error) {
	var data topicMapData
	if err := g.generateJSON(ctx, shadowTmpl, input, topicMapSchema, mapMaxTokens, &data); err != nil {
		return nil, err
	}

	seen := make(map[model.TopicID]bool)
	topics := make([]*model.Topic, 0, len(data.Topics))
	for _, td := range data.Topics {
		if td.Name == "" {
			continue
		}

		id := model.TopicID(td.ID)
		if id == "" || seen[id] {
			id = model.NewTopicID()
		}
		seen[id] = true

		connections := make([]model.TopicID, 0, len(td.Connections))
		for _, c := range td.Connections {
			connections = append(connections, model.TopicID(c))
		}

		topics = append(topics, &model.Topic{
			ID:              id,
			Name:            td.Name,
			Category:        td.Category,
			Difficulty:      clampScore(td.Difficulty),
			Vulnerability:   clampScore(td.Vulnerability),
			ExamWeight:      clampScore(td.ExamWeight),
			Connections:     connections,
			FailureMode:     td.FailureMode,
			KeyConceptCount: td.KeyConceptCount,
		})
	}

	if len(topics) == 0 {
		return nil, goerr.Wrap(model.ErrNoDecision, "topic mapping produced no usable topics")
	}

	return &model.TopicMap{Topics: topics, Assessment: data.Assessment}, nil
}

// QuestionInput scopes a question request to one topic and difficulty band
type QuestionInput struct {
	TopicID       model.TopicID
	TopicName     string
	FailureMode   string
	Vulnerability int
	Band          string
	CourseContext string
}

// AttackQuestion asks the nemesis role for one adversarial question
func (g *Generator) AttackQuestion(ctx context.Context, input QuestionInput) (*model.Question, error) {
	if input.Band == "" {
		input.Band = BandAttack
	}
	return g.question(ctx, nemesisTmpl, input)
}

// ReviewQuestion asks the review role for one low-pressure question.
// Difficulty above the review range is clamped rather than rejected.
func (g *Generator) ReviewQuestion(ctx context.Context, input QuestionInput) (*model.Question, error) {
	if input.Band == "" {
		input.Band = BandReview
	}
	q, err := g.question(ctx, reviewTmpl, input)
	if err != nil {
		return nil, err
	}
	if q.Difficulty > reviewMaxDifficulty {
		q.Difficulty = reviewMaxDifficulty
	}
	return q, nil
}

func (g *Generator) question(ctx context.Context, tmpl *template.Template, input QuestionInput) (*model.Question, error) {
	if input.FailureMode == "" {
		input.FailureMode = "general"
	}

	var q model.Question
	if err := g.generateJSON(ctx, tmpl, input, questionSchema, questionMaxTokens, &q); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	q.TopicID = input.TopicID
	q.TopicName = input.TopicName
	return &q, nil
}

// CoachInput is the empathy-call context
type CoachInput struct {
	LearnerLabel string
	Utterance    string
	StateHint    string
	Answered     int
	Accuracy     int
	TotalXP      int
}

// ReadLearner asks the coach role for an emotional reading
func (g *Generator) ReadLearner(ctx context.Context, input CoachInput) (*model.CoachReading, error) {
	if input.StateHint == "" {
		input.StateHint = "general"
	}

	var reading model.CoachReading
	if err := g.generateJSON(ctx, coachTmpl, input, coachSchema, coachMaxTokens, &reading); err != nil {
		return nil, err
	}
	if err := reading.Validate(); err != nil {
		return nil, err
	}
	return &reading, nil
}

// DialogueInput carries one Socratic turn with its transcript
type DialogueInput struct {
	TopicName       string
	FailureMode     string
	QuestionContext string
	Transcript      string
	Utterance       string
}

// SocraticReply asks the socrates role for a free-text reply
func (g *Generator) SocraticReply(ctx context.Context, input DialogueInput) (string, error) {
	prompt, err := render(socratesTmpl, input)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: dialogueMaxTokens,
	}

	text, err := g.generate(ctx, prompt, config)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (g *Generator) generateJSON(ctx context.Context, tmpl *template.Template, data any, schema *genai.Schema, maxTokens int32, out any) error {
	prompt, err := render(tmpl, data)
	if err != nil {
		return err
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		MaxOutputTokens:  maxTokens,
	}

	raw, err := g.generate(ctx, prompt, config)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return goerr.Wrap(model.ErrNoDecision, "malformed structured response",
			goerr.V("json", raw), goerr.V("cause", err.Error()))
	}
	return nil
}

func (g *Generator) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := g.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(model.ErrNoDecision, "generation request failed", goerr.V("cause", err.Error()))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", goerr.Wrap(model.ErrNoDecision, "empty response from model")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", goerr.Wrap(model.ErrNoDecision, "empty response text from model")
	}
	return text, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute prompt template")
	}
	return buf.String(), nil
}

func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

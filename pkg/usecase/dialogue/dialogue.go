// Package dialogue runs the Socratic back-and-forth on one topic. The
// transcript is append-only; a failed turn leaves it untouched.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/model"
)

// Agent is the single prompt role a dialogue needs
type Agent interface {
	SocraticReply(ctx context.Context, input agent.DialogueInput) (string, error)
}

// Speaker identifies a side of the conversation
type Speaker string

const (
	SpeakerLearner  Speaker = "learner"
	SpeakerSocrates Speaker = "socrates"
)

// Turn is one utterance in the transcript
type Turn struct {
	Speaker Speaker
	Text    string
}

// Dialogue holds one conversation against one topic
type Dialogue struct {
	mu    sync.Mutex
	agent Agent
	topic *model.Topic

	// question the dialogue was opened from, empty for a free session
	questionContext string

	transcript []Turn
}

func New(a Agent, topic *model.Topic) *Dialogue {
	return &Dialogue{agent: a, topic: topic}
}

// WithQuestionContext anchors the dialogue to a question already seen
func (d *Dialogue) WithQuestionContext(questionContext string) *Dialogue {
	d.questionContext = questionContext
	return d
}

func (d *Dialogue) Topic() *model.Topic {
	return d.topic
}

// Transcript returns a copy of the turns so far
func (d *Dialogue) Transcript() []Turn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Turn, len(d.transcript))
	copy(out, d.transcript)
	return out
}

// Say sends one learner utterance and appends both sides of the exchange.
// On failure nothing is appended and the utterance can be retried.
func (d *Dialogue) Say(ctx context.Context, utterance string) (string, error) {
	d.mu.Lock()
	rendered := renderTranscript(d.transcript)
	d.mu.Unlock()

	reply, err := d.agent.SocraticReply(ctx, agent.DialogueInput{
		TopicName:       d.topic.Name,
		FailureMode:     d.topic.FailureMode,
		QuestionContext: d.questionContext,
		Transcript:      rendered,
		Utterance:       utterance,
	})
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.transcript = append(d.transcript,
		Turn{Speaker: SpeakerLearner, Text: utterance},
		Turn{Speaker: SpeakerSocrates, Text: reply},
	)
	return reply, nil
}

func renderTranscript(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Speaker, turn.Text))
	}
	return strings.Join(lines, "\n")
}

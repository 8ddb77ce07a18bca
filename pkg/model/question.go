package model

import (
	"github.com/m-mizutani/goerr/v2"
)

type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	ChoiceC Choice = "C"
	ChoiceD Choice = "D"
)

// Choices lists the four answer choices in presentation order
var Choices = []Choice{ChoiceA, ChoiceB, ChoiceC, ChoiceD}

func (c Choice) Validate() error {
	switch c {
	case ChoiceA, ChoiceB, ChoiceC, ChoiceD:
		return nil
	default:
		return goerr.Wrap(ErrNoDecision, "invalid answer choice", goerr.V("choice", c))
	}
}

// Question is one generated multiple-choice question. Trap is set only for
// attack questions; review questions omit it.
type Question struct {
	Question    string            `json:"question"`
	Options     map[Choice]string `json:"options"`
	Correct     Choice            `json:"correct"`
	Difficulty  int               `json:"difficulty"`
	Concept     string            `json:"concept"`
	Trap        string            `json:"trap,omitempty"`
	Explanation string            `json:"explanation"`

	TopicID   TopicID `json:"-"`
	TopicName string  `json:"-"`
}

// Validate checks the question against the generated-question shape
func (q *Question) Validate() error {
	if q.Question == "" {
		return goerr.Wrap(ErrNoDecision, "question text is empty")
	}
	if err := q.Correct.Validate(); err != nil {
		return err
	}
	for _, c := range Choices {
		if q.Options[c] == "" {
			return goerr.Wrap(ErrNoDecision, "question option is missing", goerr.V("choice", c))
		}
	}
	if q.Difficulty < 1 || q.Difficulty > 10 {
		return goerr.Wrap(ErrNoDecision, "question difficulty out of range", goerr.V("difficulty", q.Difficulty))
	}
	return nil
}

// TopicMap is the shadow agent's vulnerability assessment of a course
type TopicMap struct {
	Topics     []*Topic
	Assessment string
}

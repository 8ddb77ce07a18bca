package agent

import (
	"google.golang.org/genai"
)

// Structured-output schemas, one per prompt role that must return JSON.
// These constrain the model; the parsed result is still validated against
// the legal values in pkg/model before anything acts on it.

var decisionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"agent": {
			Type:        genai.TypeString,
			Description: "Agent to deploy",
			Enum:        []string{"nemesis", "socrates", "coach", "exam", "review", "shadow"},
		},
		"topicId": {
			Type:        genai.TypeString,
			Description: "Target topic id, or empty when no specific topic is implied",
			Nullable:    ptr(true),
		},
		"reasoning": {
			Type:        genai.TypeString,
			Description: "Human-readable routing rationale",
		},
		"coachNote": {
			Type:        genai.TypeString,
			Description: "Optional note about the learner's emotional state",
			Nullable:    ptr(true),
		},
		"urgency": {
			Type: genai.TypeString,
			Enum: []string{"high", "medium", "low"},
		},
	},
	Required: []string{"agent", "reasoning", "urgency"},
}

var topicMapSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"topics": {
			Type:        genai.TypeArray,
			Description: "8-14 mapped topics",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":              {Type: genai.TypeString, Description: "Stable lowercase slug"},
					"name":            {Type: genai.TypeString},
					"category":        {Type: genai.TypeString},
					"difficulty":      {Type: genai.TypeInteger, Description: "1-10"},
					"vulnerability":   {Type: genai.TypeInteger, Description: "1-10"},
					"examWeight":      {Type: genai.TypeInteger, Description: "1-10"},
					"connections":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"failureMode":     {Type: genai.TypeString, Description: "How the learner most likely gets this wrong"},
					"keyConceptCount": {Type: genai.TypeInteger},
				},
				Required: []string{"id", "name", "difficulty", "vulnerability", "examWeight", "failureMode"},
			},
		},
		"assessment": {
			Type:        genai.TypeString,
			Description: "Overall vulnerability assessment",
		},
	},
	Required: []string{"topics", "assessment"},
}

var questionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"question": {Type: genai.TypeString},
		"options": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"A": {Type: genai.TypeString},
				"B": {Type: genai.TypeString},
				"C": {Type: genai.TypeString},
				"D": {Type: genai.TypeString},
			},
			Required: []string{"A", "B", "C", "D"},
		},
		"correct":     {Type: genai.TypeString, Enum: []string{"A", "B", "C", "D"}},
		"difficulty":  {Type: genai.TypeInteger, Description: "1-10"},
		"concept":     {Type: genai.TypeString},
		"trap":        {Type: genai.TypeString, Nullable: ptr(true)},
		"explanation": {Type: genai.TypeString},
	},
	Required: []string{"question", "options", "correct", "difficulty", "concept", "explanation"},
}

var coachSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"state": {
			Type: genai.TypeString,
			Enum: []string{"focused", "tired", "anxious", "frustrated", "avoidant", "overconfident"},
		},
		"intensity":   {Type: genai.TypeInteger, Description: "1-5"},
		"message":     {Type: genai.TypeString},
		"observation": {Type: genai.TypeString},
		"recommendation": {
			Type: genai.TypeString,
			Enum: []string{"nemesis", "socrates", "review", "break", "exam"},
		},
		"energyLevel": {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
	},
	Required: []string{"state", "intensity", "message", "observation", "recommendation", "energyLevel"},
}

func ptr[T any](v T) *T {
	return &v
}

package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/memory"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/m-mizutani/harrier/pkg/session"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type GetScheduleInput struct{}

type ScheduleEntry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Retention     int    `json:"retention"`
	Urgency       int    `json:"urgency"`
	Vulnerability int    `json:"vulnerability"`
	ExamWeight    int    `json:"examWeight"`
	ReviewCount   int    `json:"reviewCount"`
}

type GetScheduleOutput struct {
	Topics []ScheduleEntry `json:"topics"`
}

func (s *Server) handleGetSchedule(ctx context.Context, req *sdk.CallToolRequest, input GetScheduleInput) (*sdk.CallToolResult, GetScheduleOutput, error) {
	now := s.clock()
	ranked := memory.Rank(s.store.Snapshot().Topics, now)

	output := GetScheduleOutput{Topics: make([]ScheduleEntry, 0, len(ranked))}
	for _, t := range ranked {
		output.Topics = append(output.Topics, ScheduleEntry{
			ID:            string(t.ID),
			Name:          t.Name,
			Retention:     memory.Retention(t, now),
			Urgency:       memory.Urgency(t, now),
			Vulnerability: t.Vulnerability,
			ExamWeight:    t.ExamWeight,
			ReviewCount:   t.ReviewCount,
		})
	}

	return textResult(output), output, nil
}

type GetTopicInput struct {
	TopicID      string `json:"topicId" jsonschema:"ID of the topic to inspect"`
	HorizonHours int    `json:"horizonHours,omitempty" jsonschema:"Retention curve horizon in hours, default 72"`
}

type CurvePoint struct {
	Hours     float64 `json:"hours"`
	Retention int     `json:"retention"`
}

type GetTopicOutput struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	FailureMode string       `json:"failureMode"`
	Retention   int          `json:"retention"`
	Urgency     int          `json:"urgency"`
	Accuracy    int          `json:"accuracy"`
	Answered    int          `json:"answered"`
	Curve       []CurvePoint `json:"curve"`
}

func (s *Server) handleGetTopic(ctx context.Context, req *sdk.CallToolRequest, input GetTopicInput) (*sdk.CallToolResult, GetTopicOutput, error) {
	snapshot := s.store.Snapshot()
	topic := snapshot.Topic(model.TopicID(input.TopicID))
	if topic == nil {
		return nil, GetTopicOutput{}, goerr.New("unknown topic", goerr.V("topicId", input.TopicID))
	}

	horizon := time.Duration(input.HorizonHours) * time.Hour
	if horizon <= 0 {
		horizon = 72 * time.Hour
	}

	now := s.clock()
	accuracy, answered := session.TopicAccuracy(snapshot, topic.ID)

	output := GetTopicOutput{
		ID:          string(topic.ID),
		Name:        topic.Name,
		Category:    topic.Category,
		FailureMode: topic.FailureMode,
		Retention:   memory.Retention(topic, now),
		Urgency:     memory.Urgency(topic, now),
		Accuracy:    accuracy,
		Answered:    answered,
	}
	for _, p := range memory.Curve(topic, horizon, 24) {
		output.Curve = append(output.Curve, CurvePoint{Hours: p.Hours, Retention: p.Retention})
	}

	return textResult(output), output, nil
}

type RecordAnswerInput struct {
	TopicID    string `json:"topicId" jsonschema:"ID of the answered topic"`
	Correct    bool   `json:"correct" jsonschema:"Whether the answer was correct"`
	Difficulty int    `json:"difficulty,omitempty" jsonschema:"Question difficulty 1-10, default 5"`
}

type RecordAnswerOutput struct {
	TotalXP       int `json:"totalXp"`
	Vulnerability int `json:"vulnerability"`
}

func (s *Server) handleRecordAnswer(ctx context.Context, req *sdk.CallToolRequest, input RecordAnswerInput) (*sdk.CallToolResult, RecordAnswerOutput, error) {
	difficulty := input.Difficulty
	if difficulty < 1 || difficulty > 10 {
		difficulty = 5
	}

	s.store.Apply(session.Record{
		TopicID:    model.TopicID(input.TopicID),
		Correct:    input.Correct,
		Difficulty: difficulty,
	})

	snapshot := s.store.Snapshot()
	output := RecordAnswerOutput{TotalXP: snapshot.TotalXP}
	if topic := snapshot.Topic(model.TopicID(input.TopicID)); topic != nil {
		output.Vulnerability = topic.Vulnerability
	}

	return textResult(output), output, nil
}

type GetSessionStatsInput struct{}

type GetSessionStatsOutput struct {
	Answered             int `json:"answered"`
	CorrectCount         int `json:"correctCount"`
	Accuracy             int `json:"accuracy"`
	AverageVulnerability int `json:"averageVulnerability"`
	TotalXP              int `json:"totalXp"`
	ExamsTaken           int `json:"examsTaken"`
}

func (s *Server) handleGetSessionStats(ctx context.Context, req *sdk.CallToolRequest, input GetSessionStatsInput) (*sdk.CallToolResult, GetSessionStatsOutput, error) {
	snapshot := s.store.Snapshot()
	stats := session.ComputeStats(snapshot)

	output := GetSessionStatsOutput{
		Answered:             stats.Answered,
		CorrectCount:         stats.CorrectCount,
		Accuracy:             stats.Accuracy,
		AverageVulnerability: stats.AverageVulnerability,
		TotalXP:              stats.TotalXP,
		ExamsTaken:           len(snapshot.ExamResults),
	}

	return textResult(output), output, nil
}

func textResult(v any) *sdk.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte("{}")
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
	}
}

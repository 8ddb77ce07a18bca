// Package mcp exposes the live session over the Model Context Protocol
// so external agents can read the schedule and record answers.
package mcp

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/harrier/pkg/session"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server around a session store
type Server struct {
	server *sdk.Server
	store  *session.Store
	clock  func() time.Time
}

type Option func(*Server)

// WithClock replaces the wall clock, for tests
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// NewServer creates an MCP server serving the given session store
func NewServer(store *session.Store, opts ...Option) *Server {
	s := &Server{
		server: sdk.NewServer(&sdk.Implementation{
			Name:    "harrier",
			Version: "0.1.0",
		}, nil),
		store: store,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_schedule",
		Description: "List study topics ranked by urgency, with current retention estimates",
	}, s.handleGetSchedule)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_topic",
		Description: "Get one topic with its retention curve over the next days",
	}, s.handleGetTopic)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "record_answer",
		Description: "Record one answered question against a topic",
		InputSchema: recordAnswerSchema(),
	}, s.handleRecordAnswer)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_session_stats",
		Description: "Get aggregate session performance: answered, accuracy, XP",
	}, s.handleGetSessionStats)
}

// Run serves over stdio until the client disconnects or ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// recordAnswerSchema constrains the write tool beyond what tag inference
// gives: difficulty is bounded and topicId is mandatory.
func recordAnswerSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"topicId", "correct"},
		Properties: map[string]*jsonschema.Schema{
			"topicId": {
				Type:        "string",
				Description: "ID of the answered topic",
			},
			"correct": {
				Type:        "boolean",
				Description: "Whether the answer was correct",
			},
			"difficulty": {
				Type:        "integer",
				Description: "Question difficulty, 1 to 10",
				Minimum:     floatPtr(1),
				Maximum:     floatPtr(10),
			},
		},
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

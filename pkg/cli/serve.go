package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/adapter"
	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/session"
	"github.com/m-mizutani/harrier/pkg/service/mcp"
	"github.com/m-mizutani/harrier/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Expose the session over MCP (stdio)",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			profile, err := cfg.loadProfile()
			if err != nil {
				return err
			}

			store := session.New()
			if profile.Courses != "" {
				gen, err := cfg.newAgent(ctx)
				if err != nil {
					return err
				}
				if err := initFromProfile(ctx, gen, store, profile); err != nil {
					return err
				}
			}

			logging.From(ctx).Info("serving session over MCP",
				"topics", len(store.Snapshot().Topics))
			return mcp.NewServer(store).Run(ctx)
		},
	}
}

// initFromProfile maps the profiled course into topics before serving
func initFromProfile(ctx context.Context, gen *agent.Generator, store *session.Store, profile *fileConfig) error {
	extractor := adapter.NewTextExtractor()
	var mats []agent.Material
	for _, path := range profile.Materials {
		text, err := extractor.Extract(ctx, path)
		if err != nil {
			return goerr.Wrap(err, "failed to read material", goerr.V("path", path))
		}
		mats = append(mats, agent.Material{Name: path, Text: text})
	}

	tm, err := gen.MapTopics(ctx, agent.MapInput{
		LearnerLabel:   profile.Learner,
		RawCourseInput: profile.Courses,
		Materials:      mats,
	})
	if err != nil {
		return goerr.Wrap(err, "course mapping failed")
	}

	store.Apply(session.Init{Payload: session.InitPayload{
		LearnerLabel:     profile.Learner,
		RawCourseInput:   profile.Courses,
		ShadowAssessment: tm.Assessment,
		Topics:           tm.Topics,
	}})
	return nil
}

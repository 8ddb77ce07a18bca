package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/harrier/pkg/agent"
	"github.com/m-mizutani/harrier/pkg/memory"
	"github.com/m-mizutani/harrier/pkg/model"
	"github.com/m-mizutani/harrier/pkg/session"
	"github.com/m-mizutani/harrier/pkg/usecase/battle"
	"github.com/m-mizutani/harrier/pkg/usecase/dialogue"
	"github.com/m-mizutani/harrier/pkg/usecase/dispatch"
	"github.com/m-mizutani/harrier/pkg/usecase/exam"
	"github.com/urfave/cli/v3"
)

func studyCommand() *cli.Command {
	var (
		cfg       config
		learner   string
		courses   string
		materials []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "learner",
			Usage:       "Name to address the learner by",
			Sources:     cli.EnvVars("HARRIER_LEARNER"),
			Destination: &learner,
		},
		&cli.StringFlag{
			Name:        "courses",
			Usage:       "Free-text description of courses and exam scope",
			Destination: &courses,
		},
		&cli.StringSliceFlag{
			Name:    "material",
			Aliases: []string{"m"},
			Usage:   "Path to a study material file (repeatable)",
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "study",
		Usage: "Start an interactive study session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			materials = c.StringSlice("material")

			gen, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}
			gate, err := cfg.newPolicyGate(ctx)
			if err != nil {
				return err
			}
			profile, err := cfg.loadProfile()
			if err != nil {
				return err
			}
			if learner != "" {
				profile.Learner = learner
			}
			if courses != "" {
				profile.Courses = courses
			}
			if len(materials) > 0 {
				profile.Materials = append(profile.Materials, materials...)
			}

			rl, err := readline.New("harrier> ")
			if err != nil {
				return goerr.Wrap(err, "failed to open terminal")
			}
			defer rl.Close()

			w := c.Root().Writer

			store, err := bootstrap(ctx, w, rl, gen, profile)
			if err != nil {
				return err
			}

			dispatcher := dispatch.New(gen, store, dispatch.WithPolicyGate(gate))
			return warRoom(ctx, w, rl, gen, dispatcher, store)
		},
	}
}

// bootstrap collects the session profile, maps the course into topics,
// and initializes the store.
func bootstrap(ctx context.Context, w io.Writer, rl *readline.Instance, gen *agent.Generator, profile *fileConfig) (*session.Store, error) {
	if profile.Learner == "" {
		fmt.Fprintf(w, "What should I call you?\n")
		line, err := prompt(rl, "name> ")
		if err != nil {
			return nil, err
		}
		profile.Learner = line
	}
	if profile.Courses == "" {
		fmt.Fprintf(w, "Describe your courses and what the exam covers.\n")
		line, err := prompt(rl, "courses> ")
		if err != nil {
			return nil, err
		}
		if line == "" {
			return nil, goerr.New("a course description is required")
		}
		profile.Courses = line
	}

	store := session.New()

	sp := newSpinner(" mapping your course into topics...")
	sp.Start()
	err := initFromProfile(ctx, gen, store, profile)
	sp.Stop()
	if err != nil {
		return nil, err
	}

	snapshot := store.Snapshot()
	fmt.Fprintf(w, "\nMapped %d topics.\n", len(snapshot.Topics))
	if snapshot.ShadowAssessment != "" {
		fmt.Fprintf(w, "%s\n", snapshot.ShadowAssessment)
	}
	printSchedule(w, store)
	return store, nil
}

// warRoom is the main loop: built-in commands first, everything else
// goes through the dispatcher.
func warRoom(ctx context.Context, w io.Writer, rl *readline.Instance, gen *agent.Generator, dispatcher *dispatch.Dispatcher, store *session.Store) error {
	fmt.Fprintf(w, "\nTalk to me. Built-ins: topics, stats, exam, exit.\n")

	for {
		line, err := prompt(rl, "harrier> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit":
			return nil
		case "topics":
			printSchedule(w, store)
			continue
		case "stats":
			printStats(w, store)
			continue
		case "exam":
			if err := runExam(ctx, w, rl, gen, store); err != nil {
				fmt.Fprintf(w, "exam failed: %v\n", err)
			}
			continue
		}

		sp := newSpinner(" thinking...")
		sp.Start()
		outcome, err := dispatcher.Dispatch(ctx, line)
		sp.Stop()
		if err != nil {
			if errors.Is(err, dispatch.ErrBusy) {
				fmt.Fprintf(w, "Still working on the last request.\n")
				continue
			}
			if errors.Is(err, model.ErrNoDecision) {
				fmt.Fprintf(w, "I could not route that. Try rephrasing.\n")
				continue
			}
			return err
		}

		if err := handleOutcome(ctx, w, rl, gen, store, outcome); err != nil {
			return err
		}
	}
}

func handleOutcome(ctx context.Context, w io.Writer, rl *readline.Instance, gen *agent.Generator, store *session.Store, outcome *dispatch.Outcome) error {
	decision := outcome.Decision
	if decision.Reasoning != "" {
		fmt.Fprintf(w, "[%s] %s\n", decision.Agent, decision.Reasoning)
	}

	switch decision.Agent {
	case model.AgentNemesis:
		if outcome.Topic == nil {
			fmt.Fprintf(w, "No topics mapped yet.\n")
			return nil
		}
		return runBattle(ctx, w, rl, battle.New(gen, store, outcome.Topic))

	case model.AgentReview:
		if outcome.Topic == nil {
			fmt.Fprintf(w, "No topics mapped yet.\n")
			return nil
		}
		return runBattle(ctx, w, rl, battle.New(reviewSource{gen}, store, outcome.Topic))

	case model.AgentSocrates:
		if outcome.Topic == nil {
			fmt.Fprintf(w, "No topics mapped yet.\n")
			return nil
		}
		return runDialogue(ctx, w, rl, dialogue.New(gen, outcome.Topic))

	case model.AgentExam:
		return runExam(ctx, w, rl, gen, store)

	case model.AgentCoach:
		if outcome.Coach != nil {
			fmt.Fprintf(w, "\n%s\n", outcome.Coach.Message)
			if outcome.Coach.Observation != "" {
				fmt.Fprintf(w, "(%s)\n", outcome.Coach.Observation)
			}
		}
		return nil

	case model.AgentShadow:
		if outcome.TopicMap != nil {
			fmt.Fprintf(w, "Re-mapped into %d topics.\n", len(outcome.TopicMap.Topics))
			if outcome.TopicMap.Assessment != "" {
				fmt.Fprintf(w, "%s\n", outcome.TopicMap.Assessment)
			}
			printSchedule(w, store)
		}
		return nil
	}

	return nil
}

// reviewSource swaps the hard question generator for the low-pressure one
// so the battle loop can serve review sessions unchanged.
type reviewSource struct {
	gen *agent.Generator
}

func (r reviewSource) AttackQuestion(ctx context.Context, input agent.QuestionInput) (*model.Question, error) {
	return r.gen.ReviewQuestion(ctx, input)
}

func (r reviewSource) SocraticReply(ctx context.Context, input agent.DialogueInput) (string, error) {
	return r.gen.SocraticReply(ctx, input)
}

// runBattle drives one drill: answer with a letter, ask "why" after the
// reveal, "next" for another question, "back" to return.
func runBattle(ctx context.Context, w io.Writer, rl *readline.Instance, b *battle.Battle) error {
	fmt.Fprintf(w, "\nDrilling %s. Answer A-D, 'why' to dig in, 'next', or 'back'.\n", b.Topic().Name)

	for {
		sp := newSpinner(" generating question...")
		sp.Start()
		q, err := b.Next(ctx)
		sp.Stop()
		if err != nil {
			fmt.Fprintf(w, "Could not generate a question: %v\n", err)
			return nil
		}

		printQuestion(w, q)

	answerLoop:
		for {
			line, err := prompt(rl, "answer> ")
			if err != nil {
				return nil
			}

			switch {
			case line == "back":
				correct, asked := b.Score()
				fmt.Fprintf(w, "Drill over: %d/%d.\n", correct, asked)
				return nil

			case line == "next":
				break answerLoop

			case strings.HasPrefix(strings.ToLower(line), "why"):
				utterance := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(line), "why"))
				if utterance == "" {
					utterance = "why is my answer wrong?"
				}
				reply, err := b.Probe(ctx, utterance)
				if err != nil {
					if errors.Is(err, battle.ErrNotYetAnswered) {
						fmt.Fprintf(w, "Answer first.\n")
						continue
					}
					fmt.Fprintf(w, "Probe failed: %v\n", err)
					continue
				}
				fmt.Fprintf(w, "%s\n", reply)

			default:
				choice := model.Choice(strings.ToUpper(line))
				correct, err := b.Answer(choice)
				if err != nil {
					fmt.Fprintf(w, "Pick A, B, C or D.\n")
					continue
				}
				if correct {
					fmt.Fprintf(w, "Correct.\n")
				} else {
					fmt.Fprintf(w, "Wrong. Answer: %s\n", q.Correct)
				}
				if q.Explanation != "" {
					fmt.Fprintf(w, "%s\n", q.Explanation)
				}
			}
		}
	}
}

// runDialogue drives the Socratic loop until "back"
func runDialogue(ctx context.Context, w io.Writer, rl *readline.Instance, d *dialogue.Dialogue) error {
	fmt.Fprintf(w, "\nSocratic session on %s. Type 'back' to return.\n", d.Topic().Name)

	for {
		line, err := prompt(rl, "you> ")
		if err != nil {
			return nil
		}
		if line == "" {
			continue
		}
		if line == "back" {
			return nil
		}

		sp := newSpinner(" ...")
		sp.Start()
		reply, err := d.Say(ctx, line)
		sp.Stop()
		if err != nil {
			fmt.Fprintf(w, "No reply came back; try again.\n")
			continue
		}
		fmt.Fprintf(w, "%s\n", reply)
	}
}

// runExam drives one full simulation: briefing, timed run, results
func runExam(ctx context.Context, w io.Writer, rl *readline.Instance, gen exam.Agent, store *session.Store) error {
	e := exam.New(gen, store)

	roster := e.Roster()
	if len(roster) == 0 {
		fmt.Fprintf(w, "No topics mapped yet.\n")
		return nil
	}

	fmt.Fprintf(w, "\nExam briefing: one hard question per topic, 90 seconds each.\n")
	for i, t := range roster {
		fmt.Fprintf(w, "  %d. %s (vulnerability %d/10)\n", i+1, t.Name, t.Vulnerability)
	}
	line, err := prompt(rl, "begin? [y/N] ")
	if err != nil || strings.ToLower(line) != "y" {
		return nil
	}

	sp := newSpinner(" building your exam...")
	sp.Start()
	err = e.Start(ctx)
	sp.Stop()
	if err != nil {
		return err
	}

	timerCtx, cancelTimer := context.WithCancel(ctx)
	defer cancelTimer()
	go e.RunTimer(timerCtx)

	questions := e.Questions()
	for i, q := range questions {
		if e.Phase() != exam.PhaseRunning {
			break
		}
		left := e.TimeLeft()
		fmt.Fprintf(w, "\n[%d/%d] %02d:%02d left\n", i+1, len(questions), left/60, left%60)
		printQuestion(w, q)

		for {
			line, err := prompt(rl, "answer> ")
			if err != nil {
				cancelTimer()
				return nil
			}
			choice := model.Choice(strings.ToUpper(line))
			if err := e.Answer(i, choice); err != nil {
				if errors.Is(err, exam.ErrNotRunning) {
					break
				}
				fmt.Fprintf(w, "Pick A, B, C or D.\n")
				continue
			}
			break
		}
	}
	cancelTimer()

	result := e.Result()
	if result == nil {
		return nil
	}

	fmt.Fprintf(w, "\nExam complete: %d/%d (%d%%)\n",
		result.Score, len(result.Correct), examPercent(result))
	for i, q := range questions {
		mark := "x"
		if result.Correct[i] {
			mark = "o"
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, q.TopicName)
		if !result.Correct[i] && q.Explanation != "" {
			fmt.Fprintf(w, "      %s\n", q.Explanation)
		}
	}
	return nil
}

func examPercent(r *model.ExamResult) int {
	if len(r.Correct) == 0 {
		return 0
	}
	return int(math.Round(float64(r.Score) / float64(len(r.Correct)) * 100))
}

func printQuestion(w io.Writer, q *model.Question) {
	fmt.Fprintf(w, "\n%s\n", q.Question)
	for _, choice := range model.Choices {
		fmt.Fprintf(w, "  %s) %s\n", choice, q.Options[choice])
	}
}

func printSchedule(w io.Writer, store *session.Store) {
	snapshot := store.Snapshot()
	now := time.Now()

	fmt.Fprintf(w, "\n%-30s %-10s %-8s %s\n", "TOPIC", "RETENTION", "VULN", "URGENCY")
	for _, t := range memory.Rank(snapshot.Topics, now) {
		fmt.Fprintf(w, "%-30s %8d%% %6d/10 %7d\n",
			truncate(t.Name, 30), memory.Retention(t, now), t.Vulnerability, memory.Urgency(t, now))
	}
}

func printStats(w io.Writer, store *session.Store) {
	snapshot := store.Snapshot()
	stats := session.ComputeStats(snapshot)

	fmt.Fprintf(w, "\nAnswered: %d  Accuracy: %d%%  XP: %d\n",
		stats.Answered, stats.Accuracy, stats.TotalXP)
	if len(snapshot.ExamResults) > 0 {
		fmt.Fprintf(w, "Exams:")
		for _, r := range snapshot.ExamResults {
			fmt.Fprintf(w, " %d%%", examPercent(&r))
		}
		fmt.Fprintf(w, "\n")
	}
}

func prompt(rl *readline.Instance, text string) (string, error) {
	rl.SetPrompt(text)
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newSpinner(suffix string) *spinner.Spinner {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = suffix
	return sp
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

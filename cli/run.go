package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/korjavin/quizpilot/ai"
	"github.com/korjavin/quizpilot/bot"
	"github.com/korjavin/quizpilot/config"
	"github.com/korjavin/quizpilot/database"
	"github.com/korjavin/quizpilot/engine"
	"github.com/korjavin/quizpilot/media"
	"github.com/korjavin/quizpilot/page"
)

func newRunCmd() *cobra.Command {
	var noBot bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to the quiz page and answer questions as they appear",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), noBot)
		},
	}
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "do not start the Telegram companion bot")
	return cmd
}

// statusFunc adapts a function to engine.StatusReporter
type statusFunc func(msg string)

func (f statusFunc) Status(msg string) { f(msg) }

func runRun(parent context.Context, noBot bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireOracle(); err != nil {
		return err
	}
	if err := cfg.RequireBrowser(); err != nil {
		return err
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open answer memory: %w", err)
	}
	defer db.Close()

	oracle := ai.NewGroqClient(cfg.AI.APIKey, ai.Options{
		Endpoint:     cfg.AI.Endpoint,
		TextModels:   cfg.AI.TextModels,
		VisionModels: cfg.AI.VisionModels,
		MaxRetries:   cfg.AI.MaxRetries,
	})

	browser, err := page.Launch(ctx, page.BrowserConfig{
		URL:          cfg.Browser.PageURL,
		Bin:          cfg.Browser.ChromeBin,
		DebuggerURL:  cfg.Browser.DebuggerURL,
		Headless:     cfg.Browser.Headless,
		PollInterval: cfg.Engine.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to attach to the quiz page: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Printf("Error closing browser: %v", err)
		}
	}()

	var companion *bot.Bot
	machine := engine.New(engineConfig(cfg.Engine), browser, oracle, db,
		engine.WithImages(media.NewFetcher(nil)),
		engine.WithStatus(statusFunc(func(msg string) {
			if companion != nil {
				companion.Status(msg)
			}
		})),
	)
	machine.SetEnabled(initialEnabled(db, cfg.Engine.AutoAnswer))

	switch botErr := cfg.RequireBot(); {
	case noBot:
		log.Println("Telegram companion disabled")
	case botErr != nil:
		log.Printf("Telegram companion disabled: %v", botErr)
	default:
		companion, err = bot.New(cfg, db, machine)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return machine.Run(gctx)
	})
	if companion != nil {
		g.Go(func() error {
			return companion.Start(gctx)
		})
	}

	log.Printf("Watching %s", cfg.Browser.PageURL)
	err = g.Wait()
	log.Println("Shutting down")
	return err
}

func engineConfig(c config.EngineConfig) engine.Config {
	return engine.Config{
		AcceptThreshold: c.AcceptThreshold,
		OutcomeAttempts: c.OutcomeAttempts,
		OutcomeInterval: c.OutcomeInterval,
		Cooldown:        c.Cooldown,
		ThinkDelayMin:   c.ThinkDelayMin,
		ThinkDelayMax:   c.ThinkDelayMax,
		SubmitDelayMin:  c.SubmitDelayMin,
		SubmitDelayMax:  c.SubmitDelayMax,
		PollInterval:    c.PollInterval,
	}
}

// initialEnabled prefers the toggle persisted by /on and /off over the config default
func initialEnabled(db *database.DB, fallback bool) bool {
	enabled, set, err := db.AutoAnswerEnabled()
	if err != nil {
		log.Printf("Error reading auto-answer setting: %v", err)
		return fallback
	}
	if !set {
		return fallback
	}
	return enabled
}

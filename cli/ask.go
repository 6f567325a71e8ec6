package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/korjavin/quizpilot/ai"
	"github.com/korjavin/quizpilot/engine"
	"github.com/korjavin/quizpilot/matcher"
	"github.com/korjavin/quizpilot/media"
	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

func newAskCmd() *cobra.Command {
	var (
		options  []string
		topic    string
		imageURL string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the oracle a single question without touching the page or the memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireOracle(); err != nil {
				return err
			}
			oracle := ai.NewGroqClient(cfg.AI.APIKey, ai.Options{
				Endpoint:     cfg.AI.Endpoint,
				TextModels:   cfg.AI.TextModels,
				VisionModels: cfg.AI.VisionModels,
				MaxRetries:   cfg.AI.MaxRetries,
			})

			q := models.Query{Question: args[0], Topic: topic, Options: options}
			if imageURL != "" {
				img := media.NewFetcher(nil).Load(cmd.Context(), imageURL)
				q.Image = img.Data
			}
			return runAsk(cmd.Context(), cmd.OutOrStdout(), oracle, q, cfg.Engine.AcceptThreshold)
		},
	}
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "answer option (repeat; none means a numeric question)")
	cmd.Flags().StringVar(&topic, "topic", "", "topic or category hint")
	cmd.Flags().StringVar(&imageURL, "image", "", "URL of the question image")
	return cmd
}

// runAsk prints the oracle's answer and what would be submitted for it
func runAsk(ctx context.Context, out io.Writer, oracle engine.Oracle, q models.Query, threshold float64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ans, err := oracle.Ask(ctx, q)
	if err != nil {
		return err
	}
	text := normalize.CleanOracleText(ans.Text)
	fmt.Fprintf(out, "🤖 %s (model %s, attempt %d)\n", text, ans.Model, ans.Attempt)

	if len(q.Options) == 0 {
		num, ok := normalize.ExtractNumber(text)
		if !ok {
			return engine.ErrNoNumber
		}
		fmt.Fprintf(out, "Would type: %s\n", num)
		return nil
	}

	m := matcher.FindBestMatch(text, q.Options)
	if !matcher.Accepted(m, threshold) {
		fmt.Fprintf(out, "No acceptable option (best %q via %s, %.2f)\n", m.Match, m.Method, m.Confidence)
		return engine.ErrNoMatch
	}
	fmt.Fprintf(out, "Would click: %s (%s, %.2f)\n", m.Match, m.Method, m.Confidence)
	return nil
}

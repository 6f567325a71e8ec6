package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/korjavin/quizpilot/database"
	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and maintain the answer memory",
	}
	cmd.AddCommand(
		memoryCmd("stats", "Show memory and accuracy statistics", cobra.NoArgs,
			func(out io.Writer, db *database.DB, args []string) error { return memoryStats(out, db) }),
		memoryCmd("list [search]", "List cached answers", cobra.MaximumNArgs(1),
			func(out io.Writer, db *database.DB, args []string) error {
				return memoryList(out, db, strings.Join(args, " "))
			}),
		memoryCmd("export [file]", "Write the memory as JSON to a file or stdout", cobra.MaximumNArgs(1),
			func(out io.Writer, db *database.DB, args []string) error {
				if len(args) == 0 {
					return memoryExport(out, db)
				}
				return exportToFile(args[0], db)
			}),
		memoryCmd("import <file>", "Merge an exported JSON file into the memory", cobra.ExactArgs(1),
			func(out io.Writer, db *database.DB, args []string) error { return memoryImport(out, db, args[0]) }),
		memoryCmd("edit <question> <answer>", "Replace the cached answer for a question", cobra.ExactArgs(2),
			func(out io.Writer, db *database.DB, args []string) error {
				return memoryEdit(out, db, args[0], args[1])
			}),
		memoryCmd("delete <question>", "Delete the cached answer for a question", cobra.ExactArgs(1),
			func(out io.Writer, db *database.DB, args []string) error { return memoryDelete(out, db, args[0]) }),
		memoryCmd("clear", "Delete every cached answer", cobra.NoArgs,
			func(out io.Writer, db *database.DB, args []string) error { return memoryClear(out, db) }),
	)
	return cmd
}

func memoryCmd(use, short string, args cobra.PositionalArgs, run func(io.Writer, *database.DB, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openMemory()
			if err != nil {
				return err
			}
			defer db.Close()
			return run(cmd.OutOrStdout(), db, args)
		},
	}
}

func memoryStats(out io.Writer, db *database.DB) error {
	stats, err := db.Stats()
	if err != nil {
		return err
	}
	correct, incorrect, err := db.GetAttemptStats()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📊 Cached answers: %d\n", stats.Entries)
	fmt.Fprintf(out, "Cache hits: %d\n", stats.CacheHits)
	fmt.Fprintf(out, "Judged answers: %d (✅ %d / ❌ %d)\n", correct+incorrect, correct, incorrect)
	if total := correct + incorrect; total > 0 {
		fmt.Fprintf(out, "Accuracy: %.1f%%\n", float64(correct)/float64(total)*100)
	}

	missed, err := db.GetMostMissedQuestions(5)
	if err != nil {
		return err
	}
	if len(missed) > 0 {
		fmt.Fprintln(out, "\nMost missed:")
		for i, q := range missed {
			fmt.Fprintf(out, "%d. %s (%d×)\n", i+1, q.Question, q.Count)
		}
	}
	return nil
}

func memoryList(out io.Writer, db *database.DB, search string) error {
	entries, err := db.List(search)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No cached answers found.")
		return nil
	}
	for _, e := range entries {
		r := e.Record
		fmt.Fprintf(out, "%s\n    → %s  [%.0f%% %s, used %d, ✅ %d, ❌ %d]\n",
			e.Key, r.Answer, r.Confidence.Score*100, r.Confidence.Source,
			r.Stats.TimesUsed, r.Stats.TimesCorrect, r.Stats.TimesWrong)
	}
	fmt.Fprintf(out, "\n%d entries\n", len(entries))
	return nil
}

func memoryExport(out io.Writer, db *database.DB) error {
	records, err := db.Export()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func exportToFile(path string, db *database.DB) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := memoryExport(f, db); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func memoryImport(out io.Writer, db *database.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}
	var records map[string]models.AnswerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse import file: %w", err)
	}
	count, err := db.Import(records)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "📥 Imported %d of %d entries\n", count, len(records))
	return nil
}

// resolveKey accepts either a stored cache key or a question as it appears on the page
func resolveKey(db *database.DB, question string) (string, error) {
	for _, key := range []string{question, normalize.CacheKey(question, "")} {
		found, err := db.Has(key)
		if err != nil {
			return "", err
		}
		if found {
			return key, nil
		}
	}
	return "", fmt.Errorf("no cached answer for %q", question)
}

func memoryEdit(out io.Writer, db *database.DB, question, answer string) error {
	key, err := resolveKey(db, question)
	if err != nil {
		return err
	}
	if err := db.Edit(key, answer); err != nil {
		return err
	}
	fmt.Fprintf(out, "✏️ %s → %s\n", key, strings.TrimSpace(answer))
	return nil
}

func memoryDelete(out io.Writer, db *database.DB, question string) error {
	key, err := resolveKey(db, question)
	if err != nil {
		return err
	}
	if err := db.Delete(key); err != nil {
		return err
	}
	fmt.Fprintf(out, "🗑 Deleted %s\n", key)
	return nil
}

func memoryClear(out io.Writer, db *database.DB) error {
	stats, err := db.Stats()
	if err != nil {
		return err
	}
	if err := db.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(out, "🗑 Cleared %d cached answers\n", stats.Entries)
	return nil
}


package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/korjavin/quizpilot/database"
	"github.com/korjavin/quizpilot/engine"
	"github.com/korjavin/quizpilot/normalize"
)

const listPageSize = 20

var errBadArgs = errors.New("bad arguments")

func formatStats(stats database.MemoryStats, correct, incorrect int, missed []database.MissedQuestion) string {
	total := correct + incorrect
	var accuracy float64
	if total > 0 {
		accuracy = float64(correct) / float64(total) * 100
	}

	statMessage := fmt.Sprintf(`📊 Statistics:

Cached Answers: %d
Cache Hits: %d

Answers Judged: %d
Correct Answers: %d ✅
Incorrect Answers: %d ❌
Accuracy: %.1f%%`, stats.Entries, stats.CacheHits, total, correct, incorrect, accuracy)

	if len(missed) > 0 {
		statMessage += "\n\nMost Challenging Questions:\n"
		for i, q := range missed {
			statMessage += fmt.Sprintf("%d. %s (%d×)\n", i+1, truncateText(q.Question, 50), q.Count)
		}
	}
	return statMessage
}

func formatStatus(s engine.Status) string {
	enabled := "off"
	if s.Enabled {
		enabled = "on"
	}
	var sb strings.Builder
	sb.WriteString("Auto-answer is ")
	sb.WriteString(enabled)
	sb.WriteString("\n```\n")
	fmt.Fprintf(&sb, "state:    %s\n", s.State)
	if s.Question != "" {
		fmt.Fprintf(&sb, "question: %s\n", truncateText(s.Question, 120))
	}
	if s.Message != "" {
		fmt.Fprintf(&sb, "last:     %s\n", s.Message)
	}
	sb.WriteString("```")
	return sb.String()
}

// formatList renders up to limit entries, numbered from 1
func formatList(entries []database.Entry, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📚 %d cached answers\n\n", len(entries))
	for i, e := range entries {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more. Narrow it down with /list <search>.", len(entries)-limit)
			break
		}
		mark := ""
		if e.Record.Confidence.Verified {
			mark = " ✓"
		}
		fmt.Fprintf(&sb, "%d. %s\n   → %s (%.0f%%%s)\n",
			i+1, truncateText(keyLabel(e.Key), 80), e.Record.Answer, e.Record.Confidence.Score*100, mark)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// keyLabel shows a cache key the way a person reads it
func keyLabel(key string) string {
	q := normalize.QuestionFromKey(key)
	if q != key {
		return q + " 🖼"
	}
	return q
}

func parseIndexArg(args string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		return 0, errBadArgs
	}
	return n, nil
}

// parseEditArgs splits "<n> <answer>"; the answer may contain spaces
func parseEditArgs(args string) (int, string, error) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) != 2 {
		return 0, "", errBadArgs
	}
	n, err := parseIndexArg(fields[0])
	if err != nil {
		return 0, "", err
	}
	answer := strings.TrimSpace(fields[1])
	if answer == "" {
		return 0, "", errBadArgs
	}
	return n, answer, nil
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

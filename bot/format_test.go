package bot

import (
	"strings"
	"testing"

	"github.com/korjavin/quizpilot/database"
	"github.com/korjavin/quizpilot/engine"
	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"punctuation", "Accuracy: 50.0%!", `Accuracy: 50\.0%\!`},
		{"brackets", "[a](b)", `\[a\]\(b\)`},
		{"code block untouched", "x.\n```\na.b_c\n```", "x\\.\n```\na.b_c\n```"},
		{"backtick in code", "```a`b```", "```a\\`b```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeMarkdown(tt.in); got != tt.want {
				t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseEditArgs(t *testing.T) {
	tests := []struct {
		args   string
		n      int
		answer string
		ok     bool
	}{
		{"3 Praha", 3, "Praha", true},
		{" 12  New York City ", 12, "New York City", true},
		{"3", 0, "", false},
		{"x Praha", 0, "", false},
		{"0 Praha", 0, "", false},
		{"", 0, "", false},
	}
	for _, tt := range tests {
		n, answer, err := parseEditArgs(tt.args)
		if (err == nil) != tt.ok {
			t.Errorf("parseEditArgs(%q) err = %v", tt.args, err)
			continue
		}
		if n != tt.n || answer != tt.answer {
			t.Errorf("parseEditArgs(%q) = %d, %q", tt.args, n, answer)
		}
	}
}

func TestParseIndexArg(t *testing.T) {
	if n, err := parseIndexArg(" 7 "); err != nil || n != 7 {
		t.Errorf("got %d, %v", n, err)
	}
	for _, bad := range []string{"", "-1", "two"} {
		if _, err := parseIndexArg(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFormatList(t *testing.T) {
	entries := []database.Entry{
		{Key: "capital of france?", Record: models.AnswerRecord{
			Answer:     "Paris",
			Confidence: models.Confidence{Score: 1, Verified: true},
		}},
		{Key: normalize.CacheKey("what is shown?", "abcdef0123456789"), Record: models.AnswerRecord{
			Answer:     "Eiffel Tower",
			Confidence: models.Confidence{Score: 0.7},
		}},
		{Key: "third", Record: models.AnswerRecord{Answer: "3"}},
	}

	got := formatList(entries, 2)
	for _, want := range []string{
		"📚 3 cached answers",
		"1. capital of france?\n   → Paris (100% ✓)",
		"2. what is shown? 🖼\n   → Eiffel Tower (70%)",
		"... and 1 more.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("list missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "3. third") {
		t.Errorf("list should stop at the limit:\n%s", got)
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(database.MemoryStats{Entries: 12, CacheHits: 30}, 3, 1, []database.MissedQuestion{
		{Question: strings.Repeat("a", 60), Count: 2},
	})
	for _, want := range []string{
		"Cached Answers: 12",
		"Cache Hits: 30",
		"Answers Judged: 4",
		"Accuracy: 75.0%",
		"1. " + strings.Repeat("a", 47) + "... (2×)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("stats missing %q:\n%s", want, got)
		}
	}

	empty := formatStats(database.MemoryStats{}, 0, 0, nil)
	if !strings.Contains(empty, "Accuracy: 0.0%") || strings.Contains(empty, "Challenging") {
		t.Errorf("unexpected empty stats:\n%s", empty)
	}
}

func TestFormatStatus(t *testing.T) {
	got := formatStatus(engine.Status{
		State:    engine.StateAwaitingOutcome,
		Enabled:  true,
		Question: "Capital of France?",
		Message:  "Correct!",
	})
	for _, want := range []string{"Auto-answer is on", "state:    AWAITING_OUTCOME", "question: Capital of France?", "last:     Correct!"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q:\n%s", want, got)
		}
	}
}

func TestDecodeRecords(t *testing.T) {
	records, err := decodeRecords(strings.NewReader(`{"capital of france?":{"answer":"Paris","confidence":{"score":0.9}}}`))
	if err != nil {
		t.Fatalf("decodeRecords: %v", err)
	}
	if rec := records["capital of france?"]; rec.Answer != "Paris" || rec.Confidence.Score != 0.9 {
		t.Errorf("unexpected record %+v", rec)
	}

	for _, bad := range []string{"", "null", "[1,2]", "{"} {
		if _, err := decodeRecords(strings.NewReader(bad)); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

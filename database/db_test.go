package database

import (
	"path/filepath"
	"testing"

	"github.com/korjavin/quizpilot/models"
)

func TestNewCreatesSchemaOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quizpilot.db")
	db, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"answer_memory", "settings", "answer_log"} {
		var name string
		err := db.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestAttemptStats(t *testing.T) {
	db := setupTestDB(t)

	attempts := []models.Attempt{
		{SessionID: "s1", CacheKey: "a?", Question: "A?", Answer: "1", Source: "oracle"},
		{SessionID: "s2", CacheKey: "b?", Question: "B?", Answer: "2", Source: "oracle"},
		{SessionID: "s3", CacheKey: "b?", Question: "B?", Answer: "3", Source: "oracle"},
		{SessionID: "s4", CacheKey: "c?", Question: "C?", Answer: "4", Source: "cache"},
	}
	for _, a := range attempts {
		if err := db.SaveAttempt(a); err != nil {
			t.Fatalf("save attempt: %v", err)
		}
	}
	for id, outcome := range map[string]string{
		"s1": models.OutcomeCorrect,
		"s2": models.OutcomeIncorrect,
		"s3": models.OutcomeIncorrect,
	} {
		if err := db.SetAttemptOutcome(id, outcome); err != nil {
			t.Fatalf("set outcome: %v", err)
		}
	}

	correct, incorrect, err := db.GetAttemptStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if correct != 1 || incorrect != 2 {
		t.Fatalf("expected 1/2, got %d/%d", correct, incorrect)
	}

	missed, err := db.GetMostMissedQuestions(3)
	if err != nil {
		t.Fatalf("missed: %v", err)
	}
	if len(missed) != 1 || missed[0].Question != "B?" || missed[0].Count != 2 {
		t.Fatalf("unexpected missed questions: %+v", missed)
	}
}

func TestAutoAnswerSetting(t *testing.T) {
	db := setupTestDB(t)

	enabled, set, err := db.AutoAnswerEnabled()
	if err != nil || enabled || set {
		t.Fatalf("expected an unset toggle, got %v/%v (%v)", enabled, set, err)
	}
	if err := db.SetAutoAnswerEnabled(true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if enabled, set, _ := db.AutoAnswerEnabled(); !enabled || !set {
		t.Fatalf("expected enabled")
	}
	if err := db.SetAutoAnswerEnabled(false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if enabled, set, _ := db.AutoAnswerEnabled(); enabled || !set {
		t.Fatalf("expected a saved disabled toggle")
	}
}

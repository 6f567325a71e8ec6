package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/korjavin/quizpilot/database"
	"github.com/korjavin/quizpilot/engine"
	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMemoryListAndStats(t *testing.T) {
	db := newTestDB(t)
	if err := db.Record(normalize.CacheKey("Capital of France?", ""), "Paris", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := db.Record(normalize.CacheKey("Largest planet?", ""), "Jupiter", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	var out bytes.Buffer
	if err := memoryList(&out, db, "france"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "capital of france?\n    → Paris") || !strings.Contains(out.String(), "1 entries") {
		t.Errorf("unexpected list output:\n%s", out.String())
	}
	if strings.Contains(out.String(), "Jupiter") {
		t.Errorf("search should filter entries:\n%s", out.String())
	}

	out.Reset()
	if err := memoryList(&out, db, "nothing like this"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "No cached answers found.") {
		t.Errorf("unexpected empty list output:\n%s", out.String())
	}

	out.Reset()
	if err := memoryStats(&out, db); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out.String(), "Cached answers: 2") {
		t.Errorf("unexpected stats output:\n%s", out.String())
	}
}

func TestMemoryExportImport(t *testing.T) {
	src := newTestDB(t)
	key := normalize.CacheKey("Capital of France?", "")
	if err := src.Record(key, "Paris", true); err != nil {
		t.Fatalf("record: %v", err)
	}

	path := filepath.Join(t.TempDir(), "memory.json")
	if err := exportToFile(path, src); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestDB(t)
	var out bytes.Buffer
	if err := memoryImport(&out, dst, path); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "Imported 1 of 1 entries") {
		t.Errorf("unexpected import output: %s", out.String())
	}
	found, err := dst.Has(key)
	if err != nil || !found {
		t.Fatalf("imported key missing (%v)", err)
	}
}

func TestMemoryImportRejectsGarbage(t *testing.T) {
	db := newTestDB(t)
	if err := memoryImport(&bytes.Buffer{}, db, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("expected error for a missing file")
	}
}

func TestMemoryEditDeleteResolveQuestions(t *testing.T) {
	db := newTestDB(t)
	key := normalize.CacheKey("Capital of France?", "")
	if err := db.Record(key, "Lyon", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	var out bytes.Buffer
	if err := memoryEdit(&out, db, "  Capital of   FRANCE? ", "Paris"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	rec, err := db.Get(key)
	if err != nil || rec == nil || rec.Answer != "Paris" {
		t.Fatalf("edit not applied: %+v (%v)", rec, err)
	}

	if err := memoryDelete(&out, db, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if found, _ := db.Has(key); found {
		t.Fatalf("expected key to be deleted")
	}
	if err := memoryDelete(&out, db, key); err == nil {
		t.Errorf("expected error deleting a missing key")
	}
}

func TestMemoryClear(t *testing.T) {
	db := newTestDB(t)
	for _, q := range []string{"a?", "b?"} {
		if err := db.Record(q, "x", true); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	var out bytes.Buffer
	if err := memoryClear(&out, db); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(out.String(), "Cleared 2 cached answers") {
		t.Errorf("unexpected clear output: %s", out.String())
	}
	stats, _ := db.Stats()
	if stats.Entries != 0 {
		t.Errorf("expected empty memory, got %d", stats.Entries)
	}
}

type stubOracle struct {
	text string
	err  error
}

func (s stubOracle) Ask(ctx context.Context, q models.Query) (models.OracleAnswer, error) {
	return models.OracleAnswer{Text: s.text, Model: "stub", Attempt: 1}, s.err
}

func TestRunAsk(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		options []string
		want    string
		wantErr error
	}{
		{"choice", "Paris.", []string{"Paris", "Rome"}, "Would click: Paris (", nil},
		{"numeric", "<think>hmm</think> about 1 300 000", nil, "Would type: 1300000", nil},
		{"no number", "no idea", nil, "", engine.ErrNoNumber},
		{"no match", "zzzzzzzz", []string{"Paris", "Rome"}, "No acceptable option", engine.ErrNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			q := models.Query{Question: "q?", Options: tt.options}
			err := runAsk(context.Background(), &out, stubOracle{text: tt.answer}, q, 0.3)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q does not contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestRunAskOracleError(t *testing.T) {
	boom := errors.New("boom")
	err := runAsk(context.Background(), &bytes.Buffer{}, stubOracle{err: boom}, models.Query{Question: "q?"}, 0.3)
	if !errors.Is(err, boom) {
		t.Fatalf("expected oracle error, got %v", err)
	}
}

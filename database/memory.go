package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

const recordColumns = `cache_key, answer, created_at, last_used_at, times_used, times_correct, times_wrong,
	health_score, confidence_score, confidence_source, verified`

// Entry is a cached answer together with its key
type Entry struct {
	Key    string
	Record models.AnswerRecord
}

// MemoryStats are the aggregate counters shown to the user
type MemoryStats struct {
	Entries   int
	CacheHits int
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// Get returns the cached answer for key, or nil when there is none.
// A hit bumps the cache-hit counter.
func (db *DB) Get(key string) (*models.AnswerRecord, error) {
	row := db.conn.QueryRow("SELECT "+recordColumns+" FROM answer_memory WHERE cache_key = ?", key)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := db.incrementCacheHits(); err != nil {
		log.Printf("Error incrementing cache hits: %v", err)
	}
	return &entry.Record, nil
}

// Has reports whether key is cached without counting a cache hit
func (db *DB) Has(key string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM answer_memory WHERE cache_key = ?", key).Scan(&n)
	return n > 0, err
}

// Record stores an observed answer for key and updates its score.
// The record is created on first sight and deleted once it proves unreliable.
func (db *DB) Record(key, answer string, wasCorrect bool) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cache key must be non-empty")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fmt.Errorf("answer must be non-empty")
	}

	unlock := db.locks.lock(key)
	defer unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback()

	now := db.now()
	entry, err := scanEntry(tx.QueryRow("SELECT "+recordColumns+" FROM answer_memory WHERE cache_key = ?", key))
	switch {
	case err == sql.ErrNoRows:
		rec := newRecord(answer, wasCorrect, now)
		if err := upsertRecord(tx, key, rec); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load record: %w", err)
	default:
		rec := entry.Record
		if applyFeedback(&rec, answer, wasCorrect, now) {
			if err := upsertRecord(tx, key, rec); err != nil {
				return fmt.Errorf("update record: %w", err)
			}
		} else {
			log.Printf("Removing unreliable cache entry %q (health: %.2f, used: %d)",
				key, rec.Stats.HealthScore, rec.Stats.TimesUsed)
			if _, err := tx.Exec("DELETE FROM answer_memory WHERE cache_key = ?", key); err != nil {
				return fmt.Errorf("evict record: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Edit overwrites the answer of an existing record without touching its score
func (db *DB) Edit(key, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fmt.Errorf("answer cannot be empty")
	}

	unlock := db.locks.lock(key)
	defer unlock()

	res, err := db.conn.Exec(
		"UPDATE answer_memory SET answer = ?, last_used_at = ? WHERE cache_key = ?",
		answer, db.now().UnixMilli(), key,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no cached answer for %q", key)
	}
	return nil
}

// Delete removes a record
func (db *DB) Delete(key string) error {
	unlock := db.locks.lock(key)
	defer unlock()

	_, err := db.conn.Exec("DELETE FROM answer_memory WHERE cache_key = ?", key)
	return err
}

// Clear removes every cached answer
func (db *DB) Clear() error {
	_, err := db.conn.Exec("DELETE FROM answer_memory")
	return err
}

// List returns cached answers, most recently used first. A non-empty search keeps
// entries whose question or answer contains it, ignoring case.
func (db *DB) List(search string) ([]Entry, error) {
	rows, err := db.conn.Query("SELECT " + recordColumns + " FROM answer_memory ORDER BY last_used_at DESC, cache_key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	needle := strings.ToLower(strings.TrimSpace(search))
	var result []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(normalize.QuestionFromKey(entry.Key)), needle) &&
			!strings.Contains(strings.ToLower(entry.Record.Answer), needle) {
			continue
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Export returns the whole memory as a key to record map
func (db *DB) Export() (map[string]models.AnswerRecord, error) {
	entries, err := db.List("")
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.AnswerRecord, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Record
	}
	return out, nil
}

// Import merges records into memory; imported keys replace existing ones
func (db *DB) Import(records map[string]models.AnswerRecord) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	now := db.now()
	count := 0
	for key, rec := range records {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(rec.Answer) == "" {
			log.Printf("Skipping invalid imported entry %q", key)
			continue
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.LastUsedAt.IsZero() {
			rec.LastUsedAt = rec.CreatedAt
		}
		if rec.Stats.TimesUsed == 0 {
			rec.Stats.TimesUsed = 1
		}
		rec.Stats.HealthScore = healthScore(rec.Stats)
		if rec.Confidence.Source == "" {
			rec.Confidence.Source = models.SourceModel
		}
		if err := upsertRecord(tx, key, rec); err != nil {
			return 0, fmt.Errorf("import %q: %w", key, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// Stats returns the number of cached answers and the cumulative cache hits
func (db *DB) Stats() (MemoryStats, error) {
	var s MemoryStats
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM answer_memory").Scan(&s.Entries); err != nil {
		return s, err
	}
	hits, err := db.cacheHits()
	if err != nil {
		return s, err
	}
	s.CacheHits = hits
	return s, nil
}

func upsertRecord(db execer, key string, rec models.AnswerRecord) error {
	_, err := db.Exec(
		"INSERT OR REPLACE INTO answer_memory ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		key, rec.Answer, rec.CreatedAt.UnixMilli(), rec.LastUsedAt.UnixMilli(),
		rec.Stats.TimesUsed, rec.Stats.TimesCorrect, rec.Stats.TimesWrong, rec.Stats.HealthScore,
		rec.Confidence.Score, rec.Confidence.Source, rec.Confidence.Verified,
	)
	return err
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var createdAt, lastUsedAt int64
	err := row.Scan(
		&e.Key, &e.Record.Answer, &createdAt, &lastUsedAt,
		&e.Record.Stats.TimesUsed, &e.Record.Stats.TimesCorrect, &e.Record.Stats.TimesWrong, &e.Record.Stats.HealthScore,
		&e.Record.Confidence.Score, &e.Record.Confidence.Source, &e.Record.Confidence.Verified,
	)
	if err != nil {
		return e, err
	}
	e.Record.CreatedAt = time.UnixMilli(createdAt)
	e.Record.LastUsedAt = time.UnixMilli(lastUsedAt)
	return e, nil
}

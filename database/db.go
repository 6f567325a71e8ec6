package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/korjavin/quizpilot/models"
	_ "github.com/mattn/go-sqlite3"
)

// Setting names stored in the settings table
const (
	settingCacheHits  = "cache_hits"
	settingAutoAnswer = "auto_answer_enabled"
)

// DB handles all database operations
type DB struct {
	conn  *sql.DB
	locks *keyLocks
	now   func() time.Time
}

// New creates a new database connection and initializes tables
func New(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps read-modify-write transactions serialized and lets
	// ":memory:" databases share a single connection.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err = createTables(db); err != nil {
		return nil, err
	}

	return &DB{conn: db, locks: newKeyLocks(), now: time.Now}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	// Cached answers keyed by normalized question (+ image fingerprint)
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS answer_memory (
			cache_key TEXT PRIMARY KEY,
			answer TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_used_at INTEGER NOT NULL,
			times_used INTEGER NOT NULL,
			times_correct INTEGER NOT NULL,
			times_wrong INTEGER NOT NULL,
			health_score REAL NOT NULL,
			confidence_score REAL NOT NULL,
			confidence_source TEXT NOT NULL,
			verified BOOLEAN NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Scalar settings and counters
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Submitted answers history
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS answer_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			cache_key TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			source TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		)
	`)
	return err
}

// SaveAttempt records a submitted answer
func (db *DB) SaveAttempt(a models.Attempt) error {
	if a.Timestamp == 0 {
		a.Timestamp = db.now().Unix()
	}
	_, err := db.conn.Exec(
		`INSERT INTO answer_log (session_id, cache_key, question, answer, source, model, method, confidence, outcome, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.CacheKey, a.Question, a.Answer, a.Source, a.Model, a.Method, a.Confidence, a.Outcome, a.Timestamp,
	)
	return err
}

// SetAttemptOutcome stores the observed outcome of an earlier attempt
func (db *DB) SetAttemptOutcome(sessionID, outcome string) error {
	_, err := db.conn.Exec("UPDATE answer_log SET outcome = ? WHERE session_id = ?", outcome, sessionID)
	return err
}

// GetAttemptStats retrieves how many verified attempts were correct and incorrect
func (db *DB) GetAttemptStats() (correct int, incorrect int, err error) {
	err = db.conn.QueryRow(
		"SELECT COUNT(*) FROM answer_log WHERE outcome = ?", models.OutcomeCorrect,
	).Scan(&correct)
	if err != nil {
		return 0, 0, err
	}

	err = db.conn.QueryRow(
		"SELECT COUNT(*) FROM answer_log WHERE outcome = ?", models.OutcomeIncorrect,
	).Scan(&incorrect)
	return correct, incorrect, err
}

// MissedQuestion is a question that was answered incorrectly at least once
type MissedQuestion struct {
	Question string
	Count    int
}

// GetMostMissedQuestions gets the questions most frequently answered incorrectly
func (db *DB) GetMostMissedQuestions(limit int) ([]MissedQuestion, error) {
	rows, err := db.conn.Query(`
		SELECT question, COUNT(*) as count
		FROM answer_log
		WHERE outcome = ?
		GROUP BY cache_key
		ORDER BY count DESC
		LIMIT ?
	`, models.OutcomeIncorrect, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MissedQuestion
	for rows.Next() {
		var q MissedQuestion
		if err := rows.Scan(&q.Question, &q.Count); err != nil {
			return nil, err
		}
		result = append(result, q)
	}

	return result, rows.Err()
}

// AutoAnswerEnabled returns the persisted auto-answer toggle; set is false until
// the toggle has been saved once
func (db *DB) AutoAnswerEnabled() (enabled bool, set bool, err error) {
	v, err := db.getSetting(settingAutoAnswer)
	if err != nil || v == "" {
		return false, false, err
	}
	return v == "1", true, nil
}

// SetAutoAnswerEnabled persists the auto-answer toggle
func (db *DB) SetAutoAnswerEnabled(enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return db.setSetting(settingAutoAnswer, v)
}

func (db *DB) getSetting(name string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (db *DB) setSetting(name, value string) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO settings (name, value) VALUES (?, ?)", name, value)
	return err
}

func (db *DB) incrementCacheHits() error {
	_, err := db.conn.Exec(`
		INSERT INTO settings (name, value) VALUES (?, '1')
		ON CONFLICT(name) DO UPDATE SET value = CAST(CAST(settings.value AS INTEGER) + 1 AS TEXT)
	`, settingCacheHits)
	return err
}

func (db *DB) cacheHits() (int, error) {
	v, err := db.getSetting(settingCacheHits)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}

// keyLocks hands out one mutex per cache key
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

package models

import "time"

// Confidence sources
const (
	SourceModel    = "model"
	SourceVerified = "verified"
)

// PageState is what the page adapter observed during one poll
type PageState struct {
	QuestionText    string
	Options         []string
	ImageURL        string
	TopicHint       string
	TurnActive      bool
	AlreadyAnswered bool
	Numeric         bool
}

// AnswerStats tracks how a cached answer performed over time
type AnswerStats struct {
	TimesUsed    int     `json:"timesUsed"`
	TimesCorrect int     `json:"timesCorrect"`
	TimesWrong   int     `json:"timesWrong"`
	HealthScore  float64 `json:"healthScore"`
}

// Confidence describes how much a cached answer is trusted
type Confidence struct {
	Score    float64 `json:"score"`
	Source   string  `json:"source"`
	Verified bool    `json:"verified"`
}

// AnswerRecord is a cached answer stored under a cache key
type AnswerRecord struct {
	Answer     string      `json:"answer"`
	CreatedAt  time.Time   `json:"createdAt"`
	LastUsedAt time.Time   `json:"lastUsedAt"`
	Stats      AnswerStats `json:"stats"`
	Confidence Confidence  `json:"confidence"`
}

// Match methods
const (
	MethodExact    = "exact"
	MethodContains = "contains"
	MethodIncluded = "included"
	MethodFuzzy    = "fuzzy"
	MethodFallback = "fallback"
	MethodNone     = "none"
)

// MatchResult is the outcome of matching a free-text answer to on-screen options.
// Match is empty when Method is MethodNone.
type MatchResult struct {
	Match      string
	Confidence float64
	Method     string
}

// QuestionSession is the question currently being handled
type QuestionSession struct {
	ID              string
	QuestionText    string
	ChosenAnswer    string
	CacheKey        string
	AwaitingOutcome bool
}

// Outcome kinds
const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
)

// Outcome is the feedback the page shows after an answer was submitted.
// OutcomeCorrect means the page revealed the correct answer (RevealedText, possibly
// empty when it only confirmed the pick); OutcomeIncorrect means it only flagged the
// pick as wrong.
type Outcome struct {
	Kind         string
	RevealedText string
}

// Query is what the answer oracle gets asked
type Query struct {
	Question string
	Topic    string
	Options  []string
	Image    []byte
}

// OracleAnswer is the raw answer returned by the oracle
type OracleAnswer struct {
	Text    string
	Model   string
	Attempt int
}

// Where a submitted answer came from
const (
	AnswerFromOracle = "oracle"
	AnswerFromCache  = "cache"
)

// Attempt stores one submitted answer for history and statistics
type Attempt struct {
	SessionID  string
	CacheKey   string
	Question   string
	Answer     string
	Source     string
	Model      string
	Method     string
	Confidence float64
	Outcome    string
	Timestamp  int64
}

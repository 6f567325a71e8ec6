// Package engine watches the quiz page and answers questions when it is the player's turn.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/korjavin/quizpilot/matcher"
	"github.com/korjavin/quizpilot/media"
	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

// State of the answering flow
type State int

const (
	StateIdle State = iota
	StateWaitingTurn
	StateQuestionDetected
	StateAnswering
	StateAwaitingOutcome
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitingTurn:
		return "WAITING_TURN"
	case StateQuestionDetected:
		return "QUESTION_DETECTED"
	case StateAnswering:
		return "ANSWERING"
	case StateAwaitingOutcome:
		return "AWAITING_OUTCOME"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrNoMatch  = eris.New("no option matched the answer")
	ErrNoNumber = eris.New("no number in the answer")
	ErrDisabled = eris.New("auto-answer turned off")
)

// Page is what the machine needs from the quiz page
type Page interface {
	State(ctx context.Context) (models.PageState, error)
	SubmitChoice(ctx context.Context, option string) error
	SubmitNumeric(ctx context.Context, value string) error
	CheckOutcome(ctx context.Context) (models.Outcome, bool, error)
	ObserveOutcome(ctx context.Context) <-chan models.Outcome
}

// ChangeNotifier is implemented by pages that can push change notifications
type ChangeNotifier interface {
	Changes(ctx context.Context) <-chan struct{}
}

// Oracle answers questions the memory does not know
type Oracle interface {
	Ask(ctx context.Context, q models.Query) (models.OracleAnswer, error)
}

// Memory is the answer cache plus attempt history
type Memory interface {
	Get(key string) (*models.AnswerRecord, error)
	Record(key, answer string, wasCorrect bool) error
	SaveAttempt(a models.Attempt) error
	SetAttemptOutcome(sessionID, outcome string) error
}

// ImageLoader downloads and fingerprints question images
type ImageLoader interface {
	Load(ctx context.Context, url string) media.Image
}

// StatusReporter receives short human readable progress messages
type StatusReporter interface {
	Status(msg string)
}

// Config holds the timing and threshold knobs of the machine
type Config struct {
	AcceptThreshold float64
	OutcomeAttempts int
	OutcomeInterval time.Duration
	Cooldown        time.Duration
	ThinkDelayMin   time.Duration
	ThinkDelayMax   time.Duration
	SubmitDelayMin  time.Duration
	SubmitDelayMax  time.Duration
	PollInterval    time.Duration
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		AcceptThreshold: matcher.AcceptThreshold,
		OutcomeAttempts: 5,
		OutcomeInterval: 3 * time.Second,
		Cooldown:        1500 * time.Millisecond,
		ThinkDelayMin:   300 * time.Millisecond,
		ThinkDelayMax:   1500 * time.Millisecond,
		SubmitDelayMin:  200 * time.Millisecond,
		SubmitDelayMax:  500 * time.Millisecond,
		PollInterval:    time.Second,
	}
}

// Status is a point-in-time view of the machine
type Status struct {
	State    State
	Enabled  bool
	Question string
	Message  string
}

// Machine runs the answering flow for one page
type Machine struct {
	cfg    Config
	page   Page
	oracle Oracle
	memory Memory
	images ImageLoader
	status StatusReporter

	mu            sync.Mutex
	state         State
	enabled       bool
	inFlight      bool
	busyUntil     time.Time
	lastQuestion  string
	lastMessage   string
	session       *models.QuestionSession
	cancelAnswer  context.CancelFunc // ends the question being processed by TryAdvance
	cancelOutcome context.CancelFunc
	wg            sync.WaitGroup

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(min, max time.Duration) time.Duration
}

// Option customizes a Machine
type Option func(*Machine)

// WithImages enables question image handling
func WithImages(l ImageLoader) Option {
	return func(m *Machine) { m.images = l }
}

// WithStatus sends progress messages to r in addition to the log
func WithStatus(r StatusReporter) Option {
	return func(m *Machine) { m.status = r }
}

// New creates a disabled machine
func New(cfg Config, page Page, oracle Oracle, memory Memory, opts ...Option) *Machine {
	m := &Machine{
		cfg:    cfg,
		page:   page,
		oracle: oracle,
		memory: memory,
		now:    time.Now,
		sleep:  sleepContext,
		jitter: randomBetween,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the current state for display
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state, Enabled: m.enabled, Message: m.lastMessage}
	if m.session != nil {
		st.Question = m.session.QuestionText
	}
	return st
}

// Enabled reports whether auto-answering is on
func (m *Machine) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled turns auto-answering on or off. Turning it off abandons the question
// being answered, drops the current session and stops outcome tracking.
func (m *Machine) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	if !enabled {
		if m.cancelAnswer != nil {
			m.cancelAnswer()
			m.cancelAnswer = nil
		}
		m.dropSessionLocked()
		m.lastQuestion = ""
		m.state = StateIdle
	} else if m.state == StateIdle {
		m.state = StateWaitingTurn
	}
	m.mu.Unlock()

	if enabled {
		m.report("Auto-Answer Ready")
	} else {
		m.report("Auto-Answer Off")
	}
}

// Wait blocks until outcome tracking goroutines have finished
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Run advances the machine on every page change and on a timer until ctx ends
func (m *Machine) Run(ctx context.Context) error {
	var changes <-chan struct{}
	if n, ok := m.page.(ChangeNotifier); ok {
		changes = n.Changes(ctx)
	}
	poll := m.cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.dropSessionLocked()
			m.mu.Unlock()
			m.Wait()
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.TryAdvance(ctx)
		case <-ticker.C:
			m.TryAdvance(ctx)
		}
	}
}

// TryAdvance inspects the page once and handles a new question if there is one.
// Calls are dropped while another one is in flight or the cool-down is running.
func (m *Machine) TryAdvance(ctx context.Context) {
	m.mu.Lock()
	if !m.enabled || m.inFlight || m.now().Before(m.busyUntil) {
		m.mu.Unlock()
		return
	}
	actx, cancel := context.WithCancel(ctx)
	m.inFlight = true
	m.cancelAnswer = cancel
	m.mu.Unlock()

	processed := false
	defer func() {
		cancel()
		if r := recover(); r != nil {
			log.Printf("Recovered from panic while answering: %v", r)
			m.report("Error occurred")
			m.mu.Lock()
			m.lastQuestion = ""
			m.state = StateWaitingTurn
			m.mu.Unlock()
			processed = true
		}
		m.mu.Lock()
		m.inFlight = false
		m.cancelAnswer = nil
		if processed {
			m.busyUntil = m.now().Add(m.cfg.Cooldown)
		}
		m.mu.Unlock()
	}()

	processed = m.advance(actx, ctx)
}

// advance returns true once a question was taken on, which starts the cool-down.
// ctx ends with this call or a disable; parent scopes outcome tracking, which outlives it.
func (m *Machine) advance(ctx, parent context.Context) bool {
	st, err := m.page.State(ctx)
	if err != nil {
		log.Printf("Error reading page state: %v", err)
		return false
	}

	if !st.TurnActive {
		m.mu.Lock()
		m.lastQuestion = ""
		tracking := m.session != nil
		m.mu.Unlock()
		// the turn passes on right after a click; outcome tracking owns the state then
		if !tracking && m.transition(StateWaitingTurn) {
			m.report("Waiting for your turn...")
		}
		return false
	}
	if st.QuestionText == "" {
		if m.transition(StateIdle) {
			m.report("Auto-Answer Ready")
		}
		return false
	}

	m.mu.Lock()
	seen := st.QuestionText == m.lastQuestion
	m.mu.Unlock()
	if seen {
		return false
	}

	if st.AlreadyAnswered {
		m.mu.Lock()
		m.lastQuestion = st.QuestionText
		if m.session == nil {
			m.state = StateWaitingTurn
		}
		m.mu.Unlock()
		m.report("Question answered!")
		return false
	}

	m.transition(StateQuestionDetected)
	if st.TopicHint != "" {
		log.Printf("Question [%s] %s", st.TopicHint, st.QuestionText)
	} else {
		log.Printf("Question %s", st.QuestionText)
	}

	m.mu.Lock()
	m.lastQuestion = st.QuestionText
	m.dropSessionLocked()
	m.mu.Unlock()

	m.report("Thinking...")
	if err := m.sleep(ctx, m.jitter(m.cfg.ThinkDelayMin, m.cfg.ThinkDelayMax)); err != nil {
		m.abandon(st.QuestionText, err)
		return true
	}

	m.transition(StateAnswering)
	if err := m.answer(ctx, parent, st); err != nil {
		if ctx.Err() != nil || !m.Enabled() {
			m.abandon(st.QuestionText, err)
			return true
		}
		log.Printf("Question %q not answered: %v", st.QuestionText, err)
		m.report("Error: " + err.Error())
		m.transition(StateWaitingTurn)
	}
	return true
}

// abandon ends a question cut short by a disable or shutdown. A disable has
// already moved the machine to IDLE.
func (m *Machine) abandon(question string, err error) {
	log.Printf("Question %q abandoned: %v", question, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled {
		m.state = StateWaitingTurn
	}
}

// answer resolves, submits and, for oracle answers, starts outcome tracking
func (m *Machine) answer(ctx, parent context.Context, st models.PageState) error {
	sess := &models.QuestionSession{
		ID:           uuid.NewString(),
		QuestionText: st.QuestionText,
	}

	var img media.Image
	if st.ImageURL != "" && m.images != nil {
		img = m.images.Load(ctx, st.ImageURL)
	}
	sess.CacheKey = normalize.CacheKey(st.QuestionText, img.Fingerprint)

	rec, err := m.memory.Get(sess.CacheKey)
	if err != nil {
		log.Printf("[%s] Memory lookup failed, asking AI: %v", shortID(sess.ID), err)
		rec = nil
	}

	attempt := models.Attempt{
		SessionID: sess.ID,
		CacheKey:  sess.CacheKey,
		Question:  st.QuestionText,
	}

	var raw string
	if rec != nil {
		raw = rec.Answer
		attempt.Source = models.AnswerFromCache
		pct := int(rec.Confidence.Score*100 + 0.5)
		log.Printf("[%s] Cached answer %q (%d%%)", shortID(sess.ID), raw, pct)
		m.report(fmt.Sprintf("Cached (%d%%)", pct))
	} else {
		if img.URL != "" {
			m.report("Analyzing image...")
		} else {
			m.report("Calling AI...")
		}
		q := models.Query{Question: st.QuestionText, Topic: st.TopicHint, Image: img.Data}
		if !st.Numeric {
			q.Options = st.Options
		}
		ans, err := m.oracle.Ask(ctx, q)
		if err != nil {
			return eris.Wrap(err, "ask oracle")
		}
		raw = ans.Text
		attempt.Source = models.AnswerFromOracle
		attempt.Model = ans.Model
		log.Printf("[%s] AI answer %q from %s", shortID(sess.ID), raw, ans.Model)
	}

	cleaned := normalize.CleanOracleText(raw)
	var submit func(context.Context) error
	if st.Numeric {
		num, ok := normalize.ExtractNumber(cleaned)
		if !ok {
			return eris.Wrapf(ErrNoNumber, "%q", raw)
		}
		sess.ChosenAnswer = num
		submit = func(ctx context.Context) error { return m.page.SubmitNumeric(ctx, num) }
	} else {
		if cleaned == "" {
			return eris.Wrap(ErrNoMatch, "empty answer")
		}
		match := matcher.FindBestMatch(cleaned, st.Options)
		if !matcher.Accepted(match, m.cfg.AcceptThreshold) {
			return eris.Wrapf(ErrNoMatch, "%q among %v", cleaned, st.Options)
		}
		if match.Method != models.MethodExact {
			log.Printf("[%s] Fuzzy match (%s): %q -> %q [%d%%]",
				shortID(sess.ID), match.Method, cleaned, match.Match, int(match.Confidence*100))
		}
		sess.ChosenAnswer = match.Match
		attempt.Method = match.Method
		attempt.Confidence = match.Confidence
		submit = func(ctx context.Context) error { return m.page.SubmitChoice(ctx, match.Match) }
	}

	m.report("Submitting...")
	if err := m.sleep(ctx, m.jitter(m.cfg.SubmitDelayMin, m.cfg.SubmitDelayMax)); err != nil {
		return eris.Wrap(err, "submit")
	}
	if !m.Enabled() {
		return ErrDisabled
	}
	if err := submit(ctx); err != nil {
		return eris.Wrap(err, "submit answer")
	}
	m.report("Answer submitted!")

	attempt.Answer = sess.ChosenAnswer
	attempt.Timestamp = m.now().Unix()
	if err := m.memory.SaveAttempt(attempt); err != nil {
		log.Printf("[%s] Error saving attempt: %v", shortID(sess.ID), err)
	}

	// cached answers are trusted as they are
	if rec != nil {
		m.transition(StateIdle)
		return nil
	}
	sess.AwaitingOutcome = true
	m.trackOutcome(parent, sess)
	return nil
}

// transition sets the state and reports whether it changed
func (m *Machine) transition(s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

func (m *Machine) dropSessionLocked() {
	if m.cancelOutcome != nil {
		m.cancelOutcome()
		m.cancelOutcome = nil
	}
	m.session = nil
}

func (m *Machine) report(msg string) {
	m.mu.Lock()
	m.lastMessage = msg
	m.mu.Unlock()
	log.Printf("Status: %s", msg)
	if m.status != nil {
		m.status.Status(msg)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

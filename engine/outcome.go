package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/korjavin/quizpilot/models"
	"github.com/korjavin/quizpilot/normalize"
)

// trackOutcome watches for the page's verdict on sess in the background.
// Tracking ends on the first verdict, after the configured number of checks,
// or when a newer question or a disable supersedes it.
func (m *Machine) trackOutcome(parent context.Context, sess *models.QuestionSession) {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		cancel()
		log.Printf("[%s] Auto-answer off, outcome not tracked", shortID(sess.ID))
		return
	}
	m.dropSessionLocked()
	m.session = sess
	m.cancelOutcome = cancel
	m.state = StateAwaitingOutcome
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		out, ok := m.awaitOutcome(ctx)
		m.finishOutcome(sess, out, ok)
	}()
}

func (m *Machine) awaitOutcome(ctx context.Context) (models.Outcome, bool) {
	if out, found, err := m.page.CheckOutcome(ctx); err == nil && found {
		return out, true
	}

	observed := m.page.ObserveOutcome(ctx)
	interval := m.cfg.OutcomeInterval
	if interval <= 0 {
		interval = DefaultConfig().OutcomeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	checks := 0
	for {
		select {
		case <-ctx.Done():
			return models.Outcome{}, false
		case out, ok := <-observed:
			if !ok {
				observed = nil
				continue
			}
			return out, true
		case <-ticker.C:
			checks++
			out, found, err := m.page.CheckOutcome(ctx)
			if err != nil {
				log.Printf("Error checking outcome: %v", err)
			} else if found {
				return out, true
			}
			if checks >= m.cfg.OutcomeAttempts {
				return models.Outcome{}, false
			}
		}
	}
}

// finishOutcome records what the page revealed about sess
func (m *Machine) finishOutcome(sess *models.QuestionSession, out models.Outcome, ok bool) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		log.Printf("[%s] Outcome tracking superseded", shortID(sess.ID))
		return
	}
	m.session = nil
	m.cancelOutcome = nil
	m.state = StateIdle
	sess.AwaitingOutcome = false
	m.mu.Unlock()

	if !ok {
		log.Printf("[%s] No result detected for %q, nothing recorded", shortID(sess.ID), sess.QuestionText)
		return
	}

	revealed := strings.TrimSpace(out.RevealedText)
	correct := out.Kind == models.OutcomeCorrect &&
		(revealed == "" || normalize.Answer(revealed) == normalize.Answer(sess.ChosenAnswer))

	verdict := models.OutcomeIncorrect
	if correct {
		verdict = models.OutcomeCorrect
		log.Printf("[%s] ✅ %s", shortID(sess.ID), sess.ChosenAnswer)
		m.report("Correct!")
	} else {
		log.Printf("[%s] ❌ %s → %s", shortID(sess.ID), sess.ChosenAnswer, revealed)
		if revealed != "" {
			m.report("Wrong, correct answer: " + revealed)
		} else {
			m.report("Wrong answer")
		}
	}
	if err := m.memory.SetAttemptOutcome(sess.ID, verdict); err != nil {
		log.Printf("[%s] Error saving outcome: %v", shortID(sess.ID), err)
	}

	// The page's revealed answer is the truth for this key. A bare "wrong" flag
	// carries no answer to learn from.
	learned := revealed
	if learned == "" && out.Kind == models.OutcomeCorrect {
		learned = sess.ChosenAnswer
	}
	if learned == "" {
		return
	}
	if err := m.memory.Record(sess.CacheKey, learned, true); err != nil {
		log.Printf("[%s] Error recording answer: %v", shortID(sess.ID), err)
	}
}

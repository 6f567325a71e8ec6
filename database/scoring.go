package database

import (
	"math"
	"time"

	"github.com/korjavin/quizpilot/models"
)

// Scoring thresholds for cached answers
const (
	// A record whose health drops below EvictHealthBelow after more than
	// EvictMinUses uses is deleted.
	EvictHealthBelow = 0.3
	EvictMinUses     = 3
	// A contradicted answer is replaced when the stored health is below ReplaceHealthBelow.
	ReplaceHealthBelow = 0.5

	NewCorrectConfidence  = 0.8
	NewWrongConfidence    = 0.5
	ReplacedConfidence    = 0.7
	ConfirmStep           = 0.05
	ContradictStep        = 0.20
	MaxConfidence         = 0.99
	MinConfidence         = 0.10
	defaultHealthNoSignal = 1.0
)

// newRecord builds the record for a key seen for the first time
func newRecord(answer string, wasCorrect bool, now time.Time) models.AnswerRecord {
	rec := models.AnswerRecord{
		Answer:     answer,
		CreatedAt:  now,
		LastUsedAt: now,
		Stats:      models.AnswerStats{TimesUsed: 1},
		Confidence: models.Confidence{
			Score:    NewWrongConfidence,
			Source:   models.SourceModel,
			Verified: wasCorrect,
		},
	}
	if wasCorrect {
		rec.Stats.TimesCorrect = 1
		rec.Confidence.Score = NewCorrectConfidence
		rec.Confidence.Source = models.SourceVerified
	} else {
		rec.Stats.TimesWrong = 1
	}
	rec.Stats.HealthScore = healthScore(rec.Stats)
	return rec
}

// applyFeedback updates an existing record with one more observation.
// It returns false when the record has become unreliable and must be deleted.
func applyFeedback(rec *models.AnswerRecord, answer string, wasCorrect bool, now time.Time) bool {
	rec.LastUsedAt = now
	rec.Stats.TimesUsed++

	if wasCorrect {
		rec.Stats.TimesCorrect++
		rec.Confidence.Score = math.Min(MaxConfidence, rec.Confidence.Score+ConfirmStep)
		rec.Confidence.Verified = true
		rec.Confidence.Source = models.SourceVerified
	} else {
		rec.Stats.TimesWrong++
		rec.Confidence.Score = math.Max(MinConfidence, rec.Confidence.Score-ContradictStep)

		// Stored health is the value before this observation.
		if rec.Answer != answer && rec.Stats.HealthScore < ReplaceHealthBelow {
			rec.Answer = answer
			rec.Stats.TimesCorrect = 1
			rec.Stats.TimesWrong = 0
			rec.Confidence.Score = ReplacedConfidence
		}
	}

	rec.Stats.HealthScore = healthScore(rec.Stats)

	return !(rec.Stats.HealthScore < EvictHealthBelow && rec.Stats.TimesUsed > EvictMinUses)
}

func healthScore(s models.AnswerStats) float64 {
	total := s.TimesCorrect + s.TimesWrong
	if total == 0 {
		return defaultHealthNoSignal
	}
	return float64(s.TimesCorrect) / float64(total)
}

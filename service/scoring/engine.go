// Package scoring validates round scores, applies stage quality gates and
// aggregates session scores.
package scoring

import (
	"math"

	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
)

const (
	FieldQuality    = "quality"
	FieldCompliance = "compliance"
)

// Score is an aggregate over a session's decided rounds
type Score struct {
	Quality    float64 `json:"quality"`
	Compliance float64 `json:"compliance"`
	Rounds     int     `json:"rounds"`
}

// Engine is stateless; the zero value is ready to use
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// ValidateScore rejects NaN and values outside [0,100].
func (e *Engine) ValidateScore(field string, value float64) error {
	if math.IsNaN(value) || value < 0 || value > 100 {
		return &types.InvalidScoreError{Field: field, Value: value}
	}
	return nil
}

// ValidateRound validates both scores of round.
func (e *Engine) ValidateRound(quality, compliance float64) error {
	if err := e.ValidateScore(FieldQuality, quality); err != nil {
		return err
	}
	return e.ValidateScore(FieldCompliance, compliance)
}

// EvaluateRound reports whether round meets the stage gate: both scores at
// or above the stage passing score.
func (e *Engine) EvaluateRound(round *model.ReviewRound, stage *model.Stage) (bool, error) {
	if err := e.ValidateRound(round.QualityScore, round.ComplianceScore); err != nil {
		return false, err
	}
	gate := model.DefaultPassingScore
	if stage != nil {
		gate = stage.Gate()
	}
	return round.QualityScore >= gate && round.ComplianceScore >= gate, nil
}

// AggregateSessionScore weights the most recent decided round double:
// (sum of earlier rounds + 2 * latest) / (n + 1). Cancelled rounds carry no
// decision and are ignored. A session with no decided rounds scores zero.
func (e *Engine) AggregateSessionScore(session *model.ReviewSession) (*Score, error) {
	var decided []*model.ReviewRound
	for _, round := range session.Rounds {
		if round.IsDecided() {
			decided = append(decided, round)
		}
	}
	result := &Score{Rounds: len(decided)}
	if len(decided) == 0 {
		return result, nil
	}
	var quality, compliance float64
	for i, round := range decided {
		if err := e.ValidateRound(round.QualityScore, round.ComplianceScore); err != nil {
			return nil, err
		}
		weight := 1.0
		if i == len(decided)-1 {
			weight = 2
		}
		quality += weight * round.QualityScore
		compliance += weight * round.ComplianceScore
	}
	denominator := float64(len(decided) + 1)
	result.Quality = clamp(quality / denominator)
	result.Compliance = clamp(compliance / denominator)
	return result, nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

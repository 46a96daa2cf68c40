package expert

import (
	"log/slog"

	"switchboard/internal/domain"
)

// ActiveLister supplies the active capability snapshot to score against.
type ActiveLister interface {
	Active() []domain.Descriptor
}

// Selector runs the scorer against every active capability and applies
// the selection policy. It is pure with respect to persistent state: it
// only recommends, it never executes.
type Selector struct {
	registry  ActiveLister
	scorer    *Scorer
	threshold float64
	logger    *slog.Logger
}

func NewSelector(registry ActiveLister, scorer *Scorer, threshold float64, logger *slog.Logger) *Selector {
	return &Selector{
		registry:  registry,
		scorer:    scorer,
		threshold: threshold,
		logger:    logger,
	}
}

// Select scores the utterance against every active descriptor and
// returns at most one winner: the strictly highest confidence at or
// above the threshold. Equal confidence resolves to the
// first-registered capability, so the outcome is deterministic for a
// fixed capability set. A nil winner means "route to the read-only
// fallback", never "no response".
func (s *Selector) Select(utterance, userID string) domain.SelectionOutcome {
	outcome := domain.SelectionOutcome{
		UserID:    userID,
		Utterance: utterance,
	}

	var winnerIdx = -1
	for _, d := range s.registry.Active() {
		conf, params, op := s.scorer.Score(utterance, d)
		if conf == 0 {
			continue
		}
		outcome.Candidates = append(outcome.Candidates, domain.Candidate{
			Capability: d.Name,
			Confidence: conf,
			Operation:  op,
			Params:     params,
		})
		c := &outcome.Candidates[len(outcome.Candidates)-1]
		if conf < s.threshold {
			continue
		}
		// Strict comparison keeps the earlier declaration on ties.
		if winnerIdx < 0 || c.Confidence > outcome.Candidates[winnerIdx].Confidence {
			winnerIdx = len(outcome.Candidates) - 1
		}
	}

	if winnerIdx >= 0 {
		winner := outcome.Candidates[winnerIdx]
		outcome.Winner = &winner
		s.logger.Debug("expert selected",
			"capability", winner.Capability,
			"confidence", winner.Confidence,
			"candidates", len(outcome.Candidates),
		)
	} else {
		s.logger.Debug("no expert cleared threshold",
			"threshold", s.threshold,
			"candidates", len(outcome.Candidates),
		)
	}

	return outcome
}

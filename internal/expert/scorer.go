// Package expert scores capabilities against utterances and selects a
// single winner per request.
package expert

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"switchboard/internal/domain"
)

// Scoring constants. Confidence is a pure function of the trigger set
// and the utterance, so selection is reproducible for a fixed
// capability set.
const (
	// PartialMatchCeiling caps the confidence of a pattern that matched
	// but could not extract all required parameters. It sits below the
	// default selection threshold: confidence must never promise the
	// selector that execution parameters are complete.
	PartialMatchCeiling = 0.4

	// patternBase is the confidence floor for a full pattern match.
	patternBase = 0.75

	// specificityCap is the pattern length at which specificity saturates.
	specificityCap = 80

	// keywordBase is the confidence for a single keyword hit; each
	// additional hit adds keywordStep, up to three extras.
	keywordBase = 0.5
	keywordStep = 0.1
)

// Scorer computes a confidence in [0,1] and an extracted parameter set
// for one (utterance, descriptor) pair. Compiled patterns are cached
// across calls.
type Scorer struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
	logger   *slog.Logger
}

func NewScorer(logger *slog.Logger) *Scorer {
	return &Scorer{
		compiled: make(map[string]*regexp.Regexp),
		logger:   logger,
	}
}

// Score evaluates every trigger in declaration order and returns the
// best confidence with its extracted parameters and mapped operation.
// Ties between triggers keep the earlier declaration.
func (s *Scorer) Score(utterance string, d domain.Descriptor) (float64, map[string]string, string) {
	var (
		best       float64
		bestParams map[string]string
		bestOp     string
	)

	lower := strings.ToLower(utterance)
	for _, t := range d.Triggers {
		conf, params := s.scoreTrigger(utterance, lower, t)
		if conf > best {
			best = conf
			bestParams = params
			bestOp = t.Operation
		}
	}

	if bestOp == "" {
		bestOp = d.DefaultOperation()
	}
	return best, bestParams, bestOp
}

func (s *Scorer) scoreTrigger(utterance, lower string, t domain.Trigger) (float64, map[string]string) {
	if t.Pattern != "" {
		re := s.compile(t.Pattern)
		if re == nil {
			return 0, nil
		}
		m := re.FindStringSubmatch(utterance)
		if m == nil {
			return 0, nil
		}

		params := make(map[string]string)
		for i, name := range re.SubexpNames() {
			if name != "" && i < len(m) {
				params[name] = strings.TrimSpace(m[i])
			}
		}

		if !requiredParamsComplete(t, re, params) {
			return PartialMatchCeiling, params
		}

		// Longer patterns are more specific and outrank shorter ones.
		specificity := float64(len(t.Pattern)) / specificityCap
		if specificity > 1 {
			specificity = 1
		}
		return patternBase + (1-patternBase)*specificity, params
	}

	matched := 0
	for _, kw := range t.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched++
		}
	}
	if matched == 0 {
		return 0, nil
	}
	extra := matched - 1
	if extra > 3 {
		extra = 3
	}
	return keywordBase + keywordStep*float64(extra), map[string]string{}
}

// requiredParamsComplete checks that every required capture extracted a
// non-empty value. With no explicit param list, every named group in
// the pattern is required.
func requiredParamsComplete(t domain.Trigger, re *regexp.Regexp, params map[string]string) bool {
	required := t.Params
	if len(required) == 0 {
		for _, name := range re.SubexpNames() {
			if name != "" {
				required = append(required, name)
			}
		}
	}
	for _, name := range required {
		if params[name] == "" {
			return false
		}
	}
	return true
}

func (s *Scorer) compile(pattern string) *regexp.Regexp {
	s.mu.Lock()
	defer s.mu.Unlock()

	if re, ok := s.compiled[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		s.logger.Warn("invalid trigger pattern", "pattern", pattern, "err", err)
		s.compiled[pattern] = nil
		return nil
	}
	s.compiled[pattern] = re
	return re
}

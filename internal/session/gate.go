package session

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/studylens/internal/similarity"
)

const (
	// DefaultMinTextLength is the trimmed length OCR text must exceed.
	DefaultMinTextLength = 20

	// DefaultSimilarityThreshold is the Jaccard similarity above which OCR
	// text counts as a repeat of an accepted text.
	DefaultSimilarityThreshold = 0.85
)

// Outcome is the gate's decision on one OCR result.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeTooShort  Outcome = "too_short"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeOCRError  Outcome = "ocr_error"
)

// Gate decides which OCR results become extracted texts. A text is accepted
// when its trimmed length exceeds MinLength characters and its Jaccard
// similarity to every accepted text is at most Threshold.
type Gate struct {
	MinLength int
	Threshold float64
}

// NewGate returns a Gate. Non-positive arguments select the defaults.
func NewGate(minLength int, threshold float64) Gate {
	if minLength <= 0 {
		minLength = DefaultMinTextLength
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return Gate{MinLength: minLength, Threshold: threshold}
}

// Check returns the trimmed text and the gate's decision.
func (g Gate) Check(text string, accepted []string) (string, Outcome) {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) <= g.MinLength {
		return t, OutcomeTooShort
	}
	if similarity.IsDuplicate(t, accepted, g.Threshold) {
		return t, OutcomeDuplicate
	}
	return t, OutcomeAccepted
}

package study

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/studylens/internal/observe"
	"github.com/MrWong99/studylens/pkg/provider/embeddings"
)

// Status is the outcome of verifying one claim.
type Status string

const (
	StatusVerified        Status = "verified"
	StatusUncertain       Status = "uncertain"
	StatusLikelyIncorrect Status = "likely_incorrect"
	StatusError           Status = "error"
)

// Attribution names how a claim's capture index was chosen.
type Attribution string

const (
	// AttributionProportional spreads claims evenly over the captures. It
	// is a guess, not a citation.
	AttributionProportional Attribution = "proportional"

	// AttributionEmbedding picks the capture whose text is most similar to
	// the claim.
	AttributionEmbedding Attribution = "embedding"

	// AttributionNone is used when there are no captures.
	AttributionNone Attribution = "none"
)

// Evidence is an accepted screenshot text and the capture it came from.
type Evidence struct {
	Text         string
	CaptureIndex int
}

// VerificationResult is the verdict on one claim.
type VerificationResult struct {
	Claim        string      `json:"claim"`
	Status       Status      `json:"status"`
	Explanation  string      `json:"explanation"`
	CaptureIndex int         `json:"capture_index"`
	Attribution  Attribution `json:"attribution"`
}

// Counts tallies results per status.
type Counts struct {
	Verified        int `json:"verified"`
	Uncertain       int `json:"uncertain"`
	LikelyIncorrect int `json:"likely_incorrect"`
	Error           int `json:"error"`
}

// Report is the output of a verification pass.
type Report struct {
	Results []VerificationResult `json:"results"`
	Counts  Counts               `json:"counts"`
}

var claimLine = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// ParseClaims returns the text of every numbered line ("1. ..." or "2) ...")
// in reply, in order.
func ParseClaims(reply string) []string {
	var claims []string
	for _, line := range strings.Split(reply, "\n") {
		m := claimLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		if c := strings.TrimSpace(m[1]); c != "" {
			claims = append(claims, c)
		}
	}
	return claims
}

// Classify maps a verification reply to a Status by substring. A reply
// containing LIKELY_INCORRECT is likely-incorrect even if it also says
// VERIFIED.
func Classify(reply string) Status {
	switch {
	case strings.Contains(reply, "LIKELY_INCORRECT"):
		return StatusLikelyIncorrect
	case strings.Contains(reply, "VERIFIED"):
		return StatusVerified
	default:
		return StatusUncertain
	}
}

// ProportionalIndex maps claim i of claimCount onto one of captureCount
// captures. It returns -1 when there are no captures.
func ProportionalIndex(i, claimCount, captureCount int) int {
	if captureCount <= 0 || claimCount <= 0 {
		return -1
	}
	return i * captureCount / claimCount
}

// Verify extracts factual claims from notes and asks the model to check each
// one. Claims are verified concurrently; results keep the claim order. A
// failed verification request yields a result with StatusError rather than
// failing the pass. Only a failed extraction request is returned as an error.
//
// evidence and captureCount drive attribution: with an embeddings provider
// each claim points at the capture of its most similar evidence text,
// otherwise claims are spread proportionally over captureCount captures.
func (o *Orchestrator) Verify(ctx context.Context, notes string, evidence []Evidence, captureCount int) (Report, error) {
	if strings.TrimSpace(notes) == "" {
		return Report{}, ErrNoNotes
	}

	reply, err := o.complete(ctx, "claims", claimsPrompt(notes, o.maxClaims))
	if err != nil {
		return Report{}, fmt.Errorf("study: extract claims: %w", err)
	}
	claims := ParseClaims(reply)
	if len(claims) > o.maxClaims {
		claims = claims[:o.maxClaims]
	}
	if len(claims) == 0 {
		return Report{Results: []VerificationResult{}}, nil
	}

	results := make([]VerificationResult, len(claims))
	var g errgroup.Group
	for i, claim := range claims {
		g.Go(func() error {
			results[i] = o.verifyClaim(ctx, claim)
			return nil
		})
	}
	_ = g.Wait()

	o.attribute(ctx, results, evidence, captureCount)

	report := Report{Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusVerified:
			report.Counts.Verified++
		case StatusLikelyIncorrect:
			report.Counts.LikelyIncorrect++
		case StatusError:
			report.Counts.Error++
		default:
			report.Counts.Uncertain++
		}
	}
	return report, nil
}

func (o *Orchestrator) verifyClaim(ctx context.Context, claim string) VerificationResult {
	reply, err := o.complete(ctx, "verify", verifyPrompt(claim))
	if err != nil {
		return VerificationResult{Claim: claim, Status: StatusError, Explanation: err.Error()}
	}
	return VerificationResult{
		Claim:       claim,
		Status:      Classify(reply),
		Explanation: strings.TrimSpace(reply),
	}
}

// attribute fills CaptureIndex and Attribution on every result.
func (o *Orchestrator) attribute(ctx context.Context, results []VerificationResult, evidence []Evidence, captureCount int) {
	for i := range results {
		results[i].CaptureIndex = ProportionalIndex(i, len(results), captureCount)
		results[i].Attribution = AttributionProportional
		if results[i].CaptureIndex < 0 {
			results[i].Attribution = AttributionNone
		}
	}
	if o.embedder == nil || len(evidence) == 0 {
		return
	}

	texts := make([]string, 0, len(results)+len(evidence))
	for _, r := range results {
		texts = append(texts, r.Claim)
	}
	for _, e := range evidence {
		texts = append(texts, e.Text)
	}
	vecs, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		observe.Logger(ctx).Warn("claim attribution falling back to proportional", "err", err)
		return
	}
	claimVecs, evidenceVecs := vecs[:len(results)], vecs[len(results):]

	for i, cv := range claimVecs {
		best, bestScore := -1, 0.0
		for j, ev := range evidenceVecs {
			if s := embeddings.Cosine(cv, ev); s > bestScore {
				best, bestScore = j, s
			}
		}
		if best >= 0 {
			results[i].CaptureIndex = evidence[best].CaptureIndex
			results[i].Attribution = AttributionEmbedding
		}
	}
}

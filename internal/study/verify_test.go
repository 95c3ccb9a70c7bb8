package study

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/studylens/pkg/provider/llm"
	embmock "github.com/MrWong99/studylens/pkg/provider/embeddings/mock"
	llmmock "github.com/MrWong99/studylens/pkg/provider/llm/mock"
)

func TestParseClaims(t *testing.T) {
	in := "Here are the claims:\n1. Water boils at 100C at sea level.\n2) The mitochondria is the powerhouse.\r\n  3.   Light is fast.\n- not numbered\n4.\n10. Ten."
	want := []string{
		"Water boils at 100C at sea level.",
		"The mitochondria is the powerhouse.",
		"Light is fast.",
		"Ten.",
	}
	got := ParseClaims(in)
	if len(got) != len(want) {
		t.Fatalf("ParseClaims() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("claim %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		reply string
		want  Status
	}{
		{"VERIFIED. This is correct.", StatusVerified},
		{"LIKELY_INCORRECT: water boils at 100C.", StatusLikelyIncorrect},
		{"Not VERIFIED, in fact LIKELY_INCORRECT", StatusLikelyIncorrect},
		{"UNCERTAIN - hard to say", StatusUncertain},
		{"verified (lowercase does not count)", StatusUncertain},
	}
	for _, tt := range tests {
		if got := Classify(tt.reply); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.reply, got, tt.want)
		}
	}
}

func TestProportionalIndex(t *testing.T) {
	tests := []struct {
		i, claims, captures int
		want                int
	}{
		{0, 5, 10, 0},
		{1, 5, 10, 2},
		{4, 5, 10, 8},
		{2, 3, 2, 1},
		{0, 3, 0, -1},
		{4, 5, 3, 2},
	}
	for _, tt := range tests {
		if got := ProportionalIndex(tt.i, tt.claims, tt.captures); got != tt.want {
			t.Errorf("ProportionalIndex(%d, %d, %d) = %d, want %d", tt.i, tt.claims, tt.captures, got, tt.want)
		}
	}
}

// verifier answers the claims prompt with claims and each verification
// prompt with the reply mapped from its claim.
func verifier(claims string, verdicts map[string]string) func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt := req.Messages[0].Content
		if strings.HasPrefix(prompt, "Extract the most important factual claims") {
			return reply(claims), nil
		}
		for claim, verdict := range verdicts {
			if strings.Contains(prompt, "Claim: "+claim) {
				if verdict == "" {
					return nil, errors.New("model unavailable")
				}
				return reply(verdict), nil
			}
		}
		return reply("UNCERTAIN"), nil
	}
}

func TestVerify_RequiresNotes(t *testing.T) {
	o := New(&llmmock.Provider{})
	if _, err := o.Verify(context.Background(), "", nil, 0); !errors.Is(err, ErrNoNotes) {
		t.Fatalf("err = %v, want ErrNoNotes", err)
	}
}

func TestVerify_ClassifiesAndCounts(t *testing.T) {
	p := &llmmock.Provider{CompleteFunc: verifier(
		"1. Alpha claim.\n2. Beta claim.\n3. Gamma claim.\n4. Delta claim.",
		map[string]string{
			"Alpha claim.": "VERIFIED - correct.",
			"Beta claim.":  "LIKELY_INCORRECT - wrong.",
			"Gamma claim.": "",
			"Delta claim.": "I am not sure.",
		},
	)}
	o := New(p)

	report, err := o.Verify(context.Background(), "some notes", nil, 8)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	wantStatus := []Status{StatusVerified, StatusLikelyIncorrect, StatusError, StatusUncertain}
	wantIndex := []int{0, 2, 4, 6}
	if len(report.Results) != len(wantStatus) {
		t.Fatalf("results = %d, want %d", len(report.Results), len(wantStatus))
	}
	for i, r := range report.Results {
		if r.Status != wantStatus[i] {
			t.Errorf("result %d status = %q, want %q", i, r.Status, wantStatus[i])
		}
		if r.CaptureIndex != wantIndex[i] {
			t.Errorf("result %d capture index = %d, want %d", i, r.CaptureIndex, wantIndex[i])
		}
		if r.Attribution != AttributionProportional {
			t.Errorf("result %d attribution = %q, want proportional", i, r.Attribution)
		}
	}
	if !strings.Contains(report.Results[2].Explanation, "model unavailable") {
		t.Errorf("error explanation = %q, want the request error", report.Results[2].Explanation)
	}
	want := Counts{Verified: 1, LikelyIncorrect: 1, Error: 1, Uncertain: 1}
	if report.Counts != want {
		t.Errorf("counts = %+v, want %+v", report.Counts, want)
	}
}

func TestVerify_CapsClaims(t *testing.T) {
	p := &llmmock.Provider{CompleteFunc: verifier("1. a\n2. b\n3. c\n4. d\n5. e\n6. f\n7. g", nil)}
	o := New(p)

	report, err := o.Verify(context.Background(), "notes", nil, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Results) != DefaultMaxClaims {
		t.Fatalf("results = %d, want %d", len(report.Results), DefaultMaxClaims)
	}
	if got := len(p.Calls()); got != 1+DefaultMaxClaims {
		t.Errorf("requests = %d, want %d", got, 1+DefaultMaxClaims)
	}
	for _, r := range report.Results {
		if r.CaptureIndex != -1 || r.Attribution != AttributionNone {
			t.Errorf("without captures got index %d attribution %q", r.CaptureIndex, r.Attribution)
		}
	}
}

func TestVerify_NoClaims(t *testing.T) {
	o := New(&llmmock.Provider{CompleteResponse: reply("Nothing factual here.")})
	report, err := o.Verify(context.Background(), "notes", nil, 3)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Results) != 0 || report.Counts != (Counts{}) {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestVerify_ExtractionFailure(t *testing.T) {
	o := New(&llmmock.Provider{CompleteErr: errors.New("boom")})
	if _, err := o.Verify(context.Background(), "notes", nil, 3); err == nil {
		t.Fatal("expected error")
	}
}

// keywordVector embeds a text as a one-hot vector over a tiny vocabulary.
func keywordVector(text string) []float32 {
	vocab := []string{"cell", "planet", "river"}
	v := make([]float32, len(vocab))
	for i, w := range vocab {
		if strings.Contains(strings.ToLower(text), w) {
			v[i] = 1
		}
	}
	return v
}

func TestVerify_EmbeddingAttribution(t *testing.T) {
	p := &llmmock.Provider{CompleteFunc: verifier("1. The planet orbits.\n2. A cell divides.\n3. Unrelated words.", nil)}
	emb := &embmock.Provider{EmbedFunc: keywordVector}
	o := New(p, WithEmbeddings(emb))

	evidence := []Evidence{
		{Text: "Cell biology basics", CaptureIndex: 1},
		{Text: "The planet and its moons", CaptureIndex: 4},
	}
	report, err := o.Verify(context.Background(), "notes", evidence, 6)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	want := []struct {
		index int
		attr  Attribution
	}{
		{4, AttributionEmbedding},
		{1, AttributionEmbedding},
		{4, AttributionProportional}, // no keyword overlap: floor(2*6/3)
	}
	for i, w := range want {
		r := report.Results[i]
		if r.CaptureIndex != w.index || r.Attribution != w.attr {
			t.Errorf("result %d = (%d, %q), want (%d, %q)", i, r.CaptureIndex, r.Attribution, w.index, w.attr)
		}
	}
}

func TestVerify_EmbeddingFailureFallsBack(t *testing.T) {
	p := &llmmock.Provider{CompleteFunc: verifier("1. The planet orbits.", nil)}
	emb := &embmock.Provider{Err: errors.New("embed down")}
	o := New(p, WithEmbeddings(emb))

	report, err := o.Verify(context.Background(), "notes", []Evidence{{Text: "planet", CaptureIndex: 2}}, 3)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r := report.Results[0]; r.Attribution != AttributionProportional || r.CaptureIndex != 0 {
		t.Errorf("result = (%d, %q), want proportional fallback", r.CaptureIndex, r.Attribution)
	}
}

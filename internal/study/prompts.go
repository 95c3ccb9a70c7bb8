package study

import (
	"fmt"
	"strings"
)

const (
	screenshotsLabel    = "=== TEXT FROM SCREENSHOTS ==="
	transcriptLabel     = "=== TRANSCRIBED AUDIO ==="
	screenshotSeparator = "\n\n---\n\n"
)

const notesTemplate = `You are a study assistant. Create comprehensive, well-organized study notes from the following lecture/study session content. Format with clear sections, bullet points for key concepts, and highlight important information.

Content:
%s

Create detailed study notes with:
1. Summary
2. Key Concepts
3. Important Details
4. Action Items (if applicable)`

const quizTemplate = `Based on these study notes, create %d %s difficulty quiz questions.

Study Notes:
%s

Generate exactly %d questions in this format:
Q1: [Question]
A) [Option A]
B) [Option B]
C) [Option C]
D) [Option D]
Correct Answer: [Letter]
Explanation: [Brief explanation]

Mix of question types: multiple choice, true/false, and short answer.
Make questions test understanding, not just memorization.
`

const claimsTemplate = `Extract the most important factual claims from these study notes. List at most %d claims, one per line, numbered "1.", "2.", and so on. Write each claim as one self-contained sentence and add no other text.

Study Notes:
%s`

const verifyTemplate = `Fact-check the following claim taken from a student's study notes.

Claim: %s

Start your reply with exactly one of these labels:
VERIFIED if the claim is accurate
UNCERTAIN if you cannot confirm it
LIKELY_INCORRECT if the claim is probably wrong
Then explain your judgement in one or two sentences.`

// CombineSource builds the labeled text block sent to the model: screenshot
// texts joined by a horizontal rule, then the transcript joined by spaces.
// Empty sections are left out.
func CombineSource(texts, segments []string) string {
	var sections []string
	if len(texts) > 0 {
		sections = append(sections, screenshotsLabel+"\n\n"+strings.Join(texts, screenshotSeparator))
	}
	if len(segments) > 0 {
		sections = append(sections, transcriptLabel+"\n\n"+strings.Join(segments, " "))
	}
	return strings.Join(sections, "\n\n")
}

func notesPrompt(source string) string {
	return fmt.Sprintf(notesTemplate, source)
}

func quizPrompt(notes string, count int, difficulty string) string {
	return fmt.Sprintf(quizTemplate, count, difficulty, notes, count)
}

func claimsPrompt(notes string, maxClaims int) string {
	return fmt.Sprintf(claimsTemplate, maxClaims, notes)
}

func verifyPrompt(claim string) string {
	return fmt.Sprintf(verifyTemplate, claim)
}

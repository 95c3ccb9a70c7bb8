package study

import (
	"context"
	"fmt"
	"strings"
)

// GenerateNotes asks the model for study notes covering the accepted
// screenshot texts and transcript segments. With nothing collected it returns
// ErrNoContent without issuing a request. A failed request is reported as a
// *GenerationError whose Raw field holds the combined source text.
func (o *Orchestrator) GenerateNotes(ctx context.Context, texts, segments []string) (string, error) {
	if len(texts) == 0 && len(segments) == 0 {
		return "", ErrNoContent
	}
	source := CombineSource(texts, segments)
	notes, err := o.complete(ctx, "notes", notesPrompt(source))
	if err != nil {
		return "", &GenerationError{Op: "notes", Raw: source, Err: err}
	}
	return notes, nil
}

// GenerateQuiz asks the model for quiz questions based on notes. A count <= 0
// or an empty difficulty selects the configured default. The reply is
// returned as-is; its format is not checked.
func (o *Orchestrator) GenerateQuiz(ctx context.Context, notes string, count int, difficulty string) (string, error) {
	if strings.TrimSpace(notes) == "" {
		return "", ErrNoNotes
	}
	defCount, defDifficulty := o.quizDefaults()
	if count <= 0 {
		count = defCount
	}
	difficulty = strings.ToLower(strings.TrimSpace(difficulty))
	if difficulty == "" {
		difficulty = defDifficulty
	}

	quiz, err := o.complete(ctx, "quiz", quizPrompt(notes, count, difficulty))
	if err != nil {
		return "", fmt.Errorf("study: generate quiz: %w", err)
	}
	return quiz, nil
}

package feedback

import (
	"context"

	"cais-backend/internal/prompts"
)

// Repo defines persistence operations for feedback and training examples.
type Repo interface {
	CreateFeedback(ctx context.Context, fb Feedback) error
	CreateTrainingExample(ctx context.Context, example TrainingExample) error
	// ListTrainingExamples pages through a task's examples inside the window
	// in ascending creation order.
	ListTrainingExamples(ctx context.Context, task prompts.Task, window Window, offset, limit int) ([]TrainingExample, error)
	CountByTask(ctx context.Context) (map[prompts.Task]Stats, error)
	// CountByDay returns a task's feedback totals keyed by UTC date
	// (YYYY-MM-DD).
	CountByDay(ctx context.Context, task prompts.Task) (map[string]Stats, error)
}

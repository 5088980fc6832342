package analyses

import (
	"context"

	"cais-backend/internal/prompts"
)

// Repo defines persistence operations for classification results.
type Repo interface {
	Create(ctx context.Context, result ClassificationResult) error
	GetByID(ctx context.Context, resultID string) (ClassificationResult, error)
	List(ctx context.Context, task prompts.Task, limit, offset int) ([]ClassificationResult, error)
	CountByTask(ctx context.Context) (map[prompts.Task]int64, error)
}

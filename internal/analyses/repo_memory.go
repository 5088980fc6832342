package analyses

import (
	"context"
	"sort"
	"sync"

	"cais-backend/internal/prompts"
)

// MemoryRepo stores classification results in memory and is safe for
// concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]ClassificationResult
	byTask map[prompts.Task][]ClassificationResult
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]ClassificationResult),
		byTask: make(map[prompts.Task][]ClassificationResult),
	}
}

// Create stores the classification result.
func (r *MemoryRepo) Create(ctx context.Context, result ClassificationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[result.ID] = result
	r.byTask[result.Task] = append(r.byTask[result.Task], result)
	return nil
}

// GetByID returns a classification result by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, resultID string) (ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return ClassificationResult{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.byID[resultID]
	if !ok {
		return ClassificationResult{}, ErrNotFound
	}
	return result, nil
}

// List returns results for a task, newest first, with limit/offset.
func (r *MemoryRepo) List(ctx context.Context, task prompts.Task, limit, offset int) ([]ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	taskResults := r.byTask[task]
	r.mu.RUnlock()

	if len(taskResults) == 0 || offset >= len(taskResults) {
		return []ClassificationResult{}, nil
	}

	results := make([]ClassificationResult, len(taskResults))
	copy(results, taskResults)
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end], nil
}

// CountByTask returns how many results each task has recorded.
func (r *MemoryRepo) CountByTask(ctx context.Context) (map[prompts.Task]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[prompts.Task]int64, len(r.byTask))
	for task, results := range r.byTask {
		counts[task] = int64(len(results))
	}
	return counts, nil
}

var _ Repo = (*MemoryRepo)(nil)

package feedback

import (
	"context"
	"sort"
	"sync"

	"cais-backend/internal/prompts"
)

// MemoryRepo stores feedback in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu       sync.RWMutex
	feedback []Feedback
	examples map[prompts.Task][]TrainingExample
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		examples: make(map[prompts.Task][]TrainingExample),
	}
}

// CreateFeedback stores the feedback record.
func (r *MemoryRepo) CreateFeedback(ctx context.Context, fb Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, fb)
	return nil
}

// CreateTrainingExample stores the derived training example.
func (r *MemoryRepo) CreateTrainingExample(ctx context.Context, example TrainingExample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.examples[example.Task] = append(r.examples[example.Task], example)
	return nil
}

// ListTrainingExamples returns a task's examples inside the window in
// ascending creation order.
func (r *MemoryRepo) ListTrainingExamples(ctx context.Context, task prompts.Task, window Window, offset, limit int) ([]TrainingExample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	examples := make([]TrainingExample, 0, len(r.examples[task]))
	for _, example := range r.examples[task] {
		if window.Contains(example.CreatedAt) {
			examples = append(examples, example)
		}
	}
	r.mu.RUnlock()

	sort.Slice(examples, func(i, j int) bool {
		if !examples[i].CreatedAt.Equal(examples[j].CreatedAt) {
			return examples[i].CreatedAt.Before(examples[j].CreatedAt)
		}
		return examples[i].ID < examples[j].ID
	})

	if offset >= len(examples) {
		return []TrainingExample{}, nil
	}
	end := offset + limit
	if end > len(examples) {
		end = len(examples)
	}
	return examples[offset:end], nil
}

// CountByTask returns feedback totals per task.
func (r *MemoryRepo) CountByTask(ctx context.Context) (map[prompts.Task]Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[prompts.Task]Stats)
	for _, fb := range r.feedback {
		stats := counts[fb.Task]
		stats.Total++
		if fb.IsCorrect {
			stats.Correct++
		}
		counts[fb.Task] = stats
	}
	return counts, nil
}

// CountByDay returns a task's feedback totals keyed by UTC date.
func (r *MemoryRepo) CountByDay(ctx context.Context, task prompts.Task) (map[string]Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]Stats)
	for _, fb := range r.feedback {
		if fb.Task != task {
			continue
		}
		day := fb.CreatedAt.UTC().Format("2006-01-02")
		stats := counts[day]
		stats.Total++
		if fb.IsCorrect {
			stats.Correct++
		}
		counts[day] = stats
	}
	return counts, nil
}

var _ Repo = (*MemoryRepo)(nil)

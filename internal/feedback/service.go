package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"cais-backend/internal/analyses"
	"cais-backend/internal/prompts"
	"cais-backend/internal/shared/metrics"
	"cais-backend/internal/shared/storage/object"
	"cais-backend/internal/shared/telemetry"
)

const trainingPageSize = 100

// ResultsGateway is the slice of the analyses repository feedback needs.
type ResultsGateway interface {
	GetByID(ctx context.Context, resultID string) (analyses.ClassificationResult, error)
}

// SubmitInput is one reviewer verdict.
type SubmitInput struct {
	ResultID       string
	IsCorrect      bool
	CorrectedValue string
}

// Service contains business logic for feedback.
type Service struct {
	Repo    Repo
	Results ResultsGateway
	Store   object.ObjectStore
}

// Submit records a verdict on a stored result and derives a training example
// from it. The expected value is the original one when confirmed, the
// correction when refuted.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Feedback, error) {
	if strings.TrimSpace(input.ResultID) == "" {
		return Feedback{}, errors.New("resultId is required")
	}

	result, err := s.Results.GetByID(ctx, input.ResultID)
	if err != nil {
		if errors.Is(err, analyses.ErrNotFound) {
			return Feedback{}, fmt.Errorf("%w: %s", ErrUnknownResult, input.ResultID)
		}
		return Feedback{}, err
	}

	corrected := strings.TrimSpace(input.CorrectedValue)
	if !input.IsCorrect {
		if corrected == "" {
			return Feedback{}, ErrMissingCorrection
		}
		if result.Task == prompts.TaskCounterparty && len(result.CandidateCodes) > 0 {
			if _, ok := result.CandidateCodes[corrected]; !ok {
				return Feedback{}, fmt.Errorf("%w: %q", ErrInvalidCorrection, corrected)
			}
		}
	} else {
		corrected = ""
	}

	now := time.Now().UTC()
	fb := Feedback{
		ID:             uuid.NewString(),
		ResultID:       result.ID,
		Task:           result.Task,
		IsCorrect:      input.IsCorrect,
		CorrectedValue: corrected,
		CreatedAt:      now,
	}
	if err := s.Repo.CreateFeedback(ctx, fb); err != nil {
		return Feedback{}, err
	}

	expected := result.Value
	if !input.IsCorrect {
		expected = corrected
	}
	example := TrainingExample{
		ID:             uuid.NewString(),
		FeedbackID:     fb.ID,
		Task:           result.Task,
		CompanyName:    result.CompanyName,
		DocumentText:   result.DocumentText,
		CandidateCodes: result.CandidateCodes,
		ExpectedValue:  expected,
		CreatedAt:      now,
	}
	if err := s.Repo.CreateTrainingExample(ctx, example); err != nil {
		return Feedback{}, err
	}
	// The object copy is best-effort. Failing the submit here would leave the
	// repo inserts behind and a retry would duplicate them.
	if err := s.persistExample(ctx, example); err != nil {
		telemetry.Warn("training example object copy failed", map[string]any{
			"task":      string(example.Task),
			"exampleId": example.ID,
			"error":     err.Error(),
		})
	}

	metrics.IncFeedbackSubmitted()
	telemetry.Info("feedback submitted", map[string]any{
		"task":       string(fb.Task),
		"resultId":   fb.ResultID,
		"feedbackId": fb.ID,
		"isCorrect":  fb.IsCorrect,
	})
	return fb, nil
}

func (s *Service) persistExample(ctx context.Context, example TrainingExample) error {
	if s.Store == nil {
		return nil
	}
	raw, err := json.Marshal(example)
	if err != nil {
		return err
	}
	key := path.Join("training_data", string(example.Task), example.ID+".json")
	if _, err := s.Store.SaveWithKey(ctx, key, "application/json", strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("persist training example %s: %w", key, err)
	}
	return nil
}

// TrainingExamples streams a task's examples inside the window in ascending
// creation order. Pages are fetched lazily so callers can stop early, and
// each range-over restarts from the beginning.
func (s *Service) TrainingExamples(ctx context.Context, task prompts.Task, window Window) iter.Seq2[TrainingExample, error] {
	return func(yield func(TrainingExample, error) bool) {
		offset := 0
		for {
			page, err := s.Repo.ListTrainingExamples(ctx, task, window, offset, trainingPageSize)
			if err != nil {
				yield(TrainingExample{}, err)
				return
			}
			for _, example := range page {
				if !yield(example, nil) {
					return
				}
			}
			if len(page) < trainingPageSize {
				return
			}
			offset += len(page)
		}
	}
}

// Stats returns feedback totals per task.
func (s *Service) Stats(ctx context.Context) (map[prompts.Task]Stats, error) {
	return s.Repo.CountByTask(ctx)
}

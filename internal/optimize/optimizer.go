package optimize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cais-backend/internal/analyses"
	"cais-backend/internal/feedback"
	"cais-backend/internal/prompts"
	"cais-backend/internal/shared/metrics"
	"cais-backend/internal/shared/telemetry"
)

const (
	defaultMinExamples = 4
	maxFewShotExamples = 4
	fewShotTextLimit   = 600
)

// ErrInsufficientData is returned when a task has too few training examples
// to build and evaluate a candidate prompt.
var ErrInsufficientData = errors.New("not enough training examples to optimize")

// Optimizer builds few-shot candidate prompts from accumulated training
// examples and measures them against a holdout slice. Candidates are
// registered but never activated; promotion stays a human decision.
type Optimizer struct {
	Registry    *prompts.Registry
	Feedback    *feedback.Service
	Classifier  *analyses.Classifier
	MinExamples int
}

// Result summarizes one optimization run.
type Result struct {
	Task              prompts.Task `json:"task"`
	BaseLabel         string       `json:"baseLabel"`
	CandidateLabel    string       `json:"candidateLabel"`
	BaseAccuracy      float64      `json:"baseAccuracy"`
	CandidateAccuracy float64      `json:"candidateAccuracy"`
	TrainSize         int          `json:"trainSize"`
	HoldoutSize       int          `json:"holdoutSize"`
}

// Optimize runs one optimization pass for a task over the training examples
// inside the window. An empty baseLabel starts from the task's active
// version. The base version and the active pointer are left untouched.
func (o *Optimizer) Optimize(ctx context.Context, task prompts.Task, baseLabel string, window feedback.Window) (Result, error) {
	var (
		base prompts.Version
		err  error
	)
	if baseLabel != "" {
		base, err = o.Registry.Get(task, baseLabel)
	} else {
		base, err = o.Registry.Active(task)
	}
	if err != nil {
		return Result{}, err
	}

	examples, err := o.collect(ctx, task, window)
	if err != nil {
		return Result{}, err
	}
	minExamples := o.MinExamples
	if minExamples < 1 {
		minExamples = defaultMinExamples
	}
	if len(examples) < minExamples {
		return Result{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(examples), minExamples)
	}

	train, holdout := split(examples)

	candidate := prompts.Version{
		Task:      task,
		Label:     fmt.Sprintf("%s-opt-%d", base.Label, time.Now().Unix()),
		Template:  buildCandidateTemplate(base.Template, train),
		CreatedAt: time.Now().UTC(),
	}

	baseAccuracy := o.evaluate(ctx, base, holdout)
	candidateAccuracy := o.evaluate(ctx, candidate, holdout)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if err := o.Registry.Create(ctx, candidate); err != nil {
		return Result{}, err
	}
	if err := o.Registry.SetAccuracy(ctx, task, candidate.Label, candidateAccuracy); err != nil {
		return Result{}, err
	}

	metrics.IncOptimizationRuns()
	telemetry.Info("optimization run completed", map[string]any{
		"task":              string(task),
		"baseLabel":         base.Label,
		"candidateLabel":    candidate.Label,
		"baseAccuracy":      baseAccuracy,
		"candidateAccuracy": candidateAccuracy,
		"trainSize":         len(train),
		"holdoutSize":       len(holdout),
	})

	return Result{
		Task:              task,
		BaseLabel:         base.Label,
		CandidateLabel:    candidate.Label,
		BaseAccuracy:      baseAccuracy,
		CandidateAccuracy: candidateAccuracy,
		TrainSize:         len(train),
		HoldoutSize:       len(holdout),
	}, nil
}

func (o *Optimizer) collect(ctx context.Context, task prompts.Task, window feedback.Window) ([]feedback.TrainingExample, error) {
	var examples []feedback.TrainingExample
	for example, err := range o.Feedback.TrainingExamples(ctx, task, window) {
		if err != nil {
			return nil, err
		}
		examples = append(examples, example)
	}
	return examples, nil
}

// split puts the newest quarter of the examples (at least one) into the
// holdout. The ordering is creation time, so repeated runs over the same
// data split identically.
func split(examples []feedback.TrainingExample) (train, holdout []feedback.TrainingExample) {
	holdoutSize := len(examples) / 4
	if holdoutSize < 1 {
		holdoutSize = 1
	}
	cut := len(examples) - holdoutSize
	return examples[:cut], examples[cut:]
}

func buildCandidateTemplate(baseTemplate string, train []feedback.TrainingExample) string {
	var b strings.Builder
	b.WriteString(baseTemplate)
	b.WriteString("\n\nExamples of correct classifications:\n")

	count := len(train)
	if count > maxFewShotExamples {
		train = train[count-maxFewShotExamples:]
	}
	for i, example := range train {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Document excerpt:\n")
		b.WriteString(truncate(example.DocumentText, fewShotTextLimit))
		b.WriteString("\nCorrect answer: ")
		b.WriteString(example.ExpectedValue)
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// evaluate replays the holdout examples against one prompt version and
// returns the fraction answered correctly. A failed classification counts
// as a miss.
func (o *Optimizer) evaluate(ctx context.Context, version prompts.Version, holdout []feedback.TrainingExample) float64 {
	if len(holdout) == 0 {
		return 0
	}
	correct := 0
	for _, example := range holdout {
		result, err := o.Classifier.ClassifyWith(ctx, version, analyses.ClassificationRequest{
			Task:           example.Task,
			CompanyName:    example.CompanyName,
			DocumentText:   example.DocumentText,
			CandidateCodes: example.CandidateCodes,
		})
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(result.Value), strings.TrimSpace(example.ExpectedValue)) {
			correct++
		}
	}
	return float64(correct) / float64(len(holdout))
}

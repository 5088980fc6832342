package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cais-backend/internal/extract"
	"cais-backend/internal/prompts"
	"cais-backend/internal/shared/metrics"
	"cais-backend/internal/shared/storage/object"
	"cais-backend/internal/shared/telemetry"
	"cais-backend/internal/shared/util"
)

// Service contains business logic for dual-task analyses.
type Service struct {
	Repo             Repo
	Store            object.ObjectStore
	Classifier       *Classifier
	Timeout          time.Duration
	BatchConcurrency int
}

// Analyze parses the uploaded documents once, then runs the jurisdiction and
// counterparty tasks concurrently. Each task succeeds or fails on its own;
// only when both fail does Analyze return an error.
func (s *Service) Analyze(ctx context.Context, input AnalyzeInput) (Analysis, error) {
	if strings.TrimSpace(input.CompanyName) == "" {
		return Analysis{}, errors.New("companyName is required")
	}
	if len(input.Documents) == 0 {
		return Analysis{}, errors.New("at least one document is required")
	}
	if len(input.CandidateCodes) == 0 {
		return Analysis{}, errors.New("candidate codes are required")
	}

	docs := make([]extract.Document, 0, len(input.Documents))
	names := make([]string, 0, len(input.Documents))
	for _, file := range input.Documents {
		format, err := extract.FormatFromFileName(file.Name)
		if err != nil {
			return Analysis{}, err
		}
		doc, err := extract.Parse(ctx, file.Data, format, file.Name)
		if err != nil {
			return Analysis{}, err
		}
		docs = append(docs, doc)
		names = append(names, doc.FileName)
	}
	combined := extract.Combine(docs)

	s.archiveUploads(ctx, input.CompanyName, input.Documents)

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	analysis := Analysis{CompanyName: input.CompanyName}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analysis.Jurisdiction, analysis.JurisdictionErr = s.runTask(gctx, ClassificationRequest{
			Task:          prompts.TaskJurisdiction,
			CompanyName:   input.CompanyName,
			DocumentText:  combined,
			DocumentNames: names,
			PromptVersion: input.PromptVersion,
		})
		return nil
	})
	g.Go(func() error {
		analysis.Counterparty, analysis.CounterpartyErr = s.runTask(gctx, ClassificationRequest{
			Task:           prompts.TaskCounterparty,
			CompanyName:    input.CompanyName,
			DocumentText:   combined,
			DocumentNames:  names,
			CandidateCodes: input.CandidateCodes,
			PromptVersion:  input.PromptVersion,
		})
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}

	// Persistence happens only after both tasks have joined and the call is
	// still live. A cancelled analyze leaves no partial records, even when
	// one task had already classified before the cancellation.
	if analysis.JurisdictionErr == nil {
		if err := s.persistTask(ctx, analysis.Jurisdiction); err != nil {
			analysis.Jurisdiction, analysis.JurisdictionErr = nil, err
		}
	}
	if analysis.CounterpartyErr == nil {
		if err := s.persistTask(ctx, analysis.Counterparty); err != nil {
			analysis.Counterparty, analysis.CounterpartyErr = nil, err
		}
	}

	if analysis.JurisdictionErr != nil && analysis.CounterpartyErr != nil {
		return analysis, &AnalysisFailedError{
			JurisdictionErr: analysis.JurisdictionErr,
			CounterpartyErr: analysis.CounterpartyErr,
		}
	}
	return analysis, nil
}

func (s *Service) runTask(ctx context.Context, req ClassificationRequest) (*ClassificationResult, error) {
	metrics.IncClassificationStarted()
	started := time.Now()

	result, err := s.Classifier.Classify(ctx, req)
	if err != nil {
		metrics.IncClassificationFailed()
		telemetry.Error("classification failed", map[string]any{
			"task":    string(req.Task),
			"company": req.CompanyName,
			"error":   sanitizeError(err),
		})
		return nil, err
	}

	telemetry.Info("classification completed", map[string]any{
		"task":          string(req.Task),
		"company":       req.CompanyName,
		"resultId":      result.ID,
		"value":         result.Value,
		"promptVersion": result.PromptVersion,
		"durationMs":    time.Since(started).Milliseconds(),
	})
	return &result, nil
}

func (s *Service) persistTask(ctx context.Context, result *ClassificationResult) error {
	if err := s.record(ctx, *result); err != nil {
		metrics.IncClassificationFailed()
		return fmt.Errorf("record result: %w", err)
	}
	metrics.IncClassificationCompleted()
	return nil
}

// archiveUploads keeps the original documents for audit. Archiving is
// best-effort; a storage hiccup must not block the classification itself.
func (s *Service) archiveUploads(ctx context.Context, companyName string, files []UploadedFile) {
	if s.Store == nil {
		return
	}
	for _, file := range files {
		key, size, mimeType, err := s.Store.Save(ctx, companyName, file.Name, bytes.NewReader(file.Data))
		if err != nil {
			telemetry.Warn("upload archive failed", map[string]any{
				"company": companyName,
				"file":    file.Name,
				"error":   sanitizeError(err),
			})
			continue
		}
		telemetry.Info("upload archived", map[string]any{
			"company": companyName,
			"key":     key,
			"bytes":   size,
			"mime":    mimeType,
		})
	}
}

func (s *Service) record(ctx context.Context, result ClassificationResult) error {
	if err := s.Repo.Create(ctx, result); err != nil {
		return err
	}
	if s.Store == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	key := path.Join("analysis_results", string(result.Task), util.HashKey(result.CompanyName), result.ID+".json")
	if _, err := s.Store.SaveWithKey(ctx, key, "application/json", strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("persist result object %s: %w", key, err)
	}
	return nil
}

// Get returns a stored classification result by ID.
func (s *Service) Get(ctx context.Context, resultID string) (ClassificationResult, error) {
	if resultID == "" {
		return ClassificationResult{}, errors.New("resultID is required")
	}
	return s.Repo.GetByID(ctx, resultID)
}

// BatchItem pairs one batch input with its outcome.
type BatchItem struct {
	CompanyName string
	Analysis    Analysis
	Err         error
}

// AnalyzeBatch runs analyses for multiple companies with bounded concurrency.
// One failing company does not stop the rest of the batch.
func (s *Service) AnalyzeBatch(ctx context.Context, inputs []AnalyzeInput) []BatchItem {
	items := make([]BatchItem, len(inputs))

	limit := s.BatchConcurrency
	if limit < 1 {
		limit = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)

	for i, input := range inputs {
		g.Go(func() error {
			analysis, err := s.Analyze(ctx, input)
			items[i] = BatchItem{CompanyName: input.CompanyName, Analysis: analysis, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

package analyses

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cais-backend/internal/llm"
	"cais-backend/internal/prompts"
	"cais-backend/internal/shared/storage/object/local"
)

// routingLLM answers based on which task prompt it receives, so both
// concurrent tasks can share one fake.
type routingLLM struct {
	mu           sync.Mutex
	jurisdiction func() (string, error)
	counterparty func() (string, error)
	calls        int
}

func (r *routingLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt := messages[len(messages)-1].Content
	if strings.Contains(prompt, "governing law") || strings.Contains(prompt, "jurisdiction") {
		return r.jurisdiction()
	}
	return r.counterparty()
}

func okJurisdiction() (string, error) {
	return `{"jurisdiction": "Delaware", "reasoning": "Clause names Delaware.", "citation": "laws of the State of Delaware"}`, nil
}

func okCounterparty() (string, error) {
	return `{"code": "BANK", "reasoning": "Counterparty is a bank.", "citation": ""}`, nil
}

func newTestService(t *testing.T, client llm.Client) *Service {
	t.Helper()
	return &Service{
		Repo:             NewMemoryRepo(),
		Store:            local.New(t.TempDir()),
		Classifier:       NewClassifier(client, newTestRegistry(t)),
		Timeout:          5 * time.Second,
		BatchConcurrency: 2,
	}
}

func testInput() AnalyzeInput {
	return AnalyzeInput{
		CompanyName: "Acme Corp",
		Documents: []UploadedFile{
			{Name: "msa.txt", Data: []byte("This Agreement shall be governed by the laws of the State of Delaware. Counterparty: First National Bank.")},
		},
		CandidateCodes: map[string]string{"BANK": "Banking institution", "INS": "Insurance provider"},
	}
}

func TestAnalyze_BothTasksSucceed(t *testing.T) {
	client := &routingLLM{jurisdiction: okJurisdiction, counterparty: okCounterparty}
	svc := newTestService(t, client)

	analysis, err := svc.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Jurisdiction == nil || analysis.Jurisdiction.Value != "Delaware" {
		t.Fatalf("unexpected jurisdiction result: %+v err=%v", analysis.Jurisdiction, analysis.JurisdictionErr)
	}
	if analysis.Counterparty == nil || analysis.Counterparty.Value != "BANK" {
		t.Fatalf("unexpected counterparty result: %+v err=%v", analysis.Counterparty, analysis.CounterpartyErr)
	}
	if analysis.Jurisdiction.ID == analysis.Counterparty.ID {
		t.Fatal("task results must have distinct ids")
	}

	stored, err := svc.Get(context.Background(), analysis.Jurisdiction.ID)
	if err != nil {
		t.Fatalf("stored result lookup: %v", err)
	}
	if stored.Value != "Delaware" {
		t.Fatalf("stored value mismatch: %q", stored.Value)
	}
	if !strings.Contains(stored.DocumentText, "=== msa.txt ===") {
		t.Fatalf("stored result should keep combined text, got %q", stored.DocumentText)
	}

	keys, err := svc.Store.List(context.Background(), "analysis_results")
	if err != nil {
		t.Fatalf("list result objects: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 persisted result objects, got %d: %v", len(keys), keys)
	}
}

func TestAnalyze_PartialFailureKeepsOtherResult(t *testing.T) {
	client := &routingLLM{
		jurisdiction: okJurisdiction,
		counterparty: func() (string, error) { return "", llm.ErrUnavailable },
	}
	svc := newTestService(t, client)

	analysis, err := svc.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("partial failure should not be a top-level error: %v", err)
	}
	if analysis.Jurisdiction == nil || analysis.Jurisdiction.Value != "Delaware" {
		t.Fatalf("jurisdiction should succeed: %+v", analysis.Jurisdiction)
	}
	if !errors.Is(analysis.CounterpartyErr, llm.ErrUnavailable) {
		t.Fatalf("expected counterparty ErrUnavailable, got %v", analysis.CounterpartyErr)
	}

	if _, err := svc.Get(context.Background(), analysis.Jurisdiction.ID); err != nil {
		t.Fatalf("successful task must still be persisted: %v", err)
	}
}

func TestAnalyze_BothFailed(t *testing.T) {
	client := &routingLLM{
		jurisdiction: func() (string, error) { return "", llm.ErrUnavailable },
		counterparty: func() (string, error) { return `not json`, nil },
	}
	svc := newTestService(t, client)

	_, err := svc.Analyze(context.Background(), testInput())
	var failed *AnalysisFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected AnalysisFailedError, got %v", err)
	}
	if !errors.Is(failed.JurisdictionErr, llm.ErrUnavailable) {
		t.Fatalf("jurisdiction cause lost: %v", failed.JurisdictionErr)
	}
	if !errors.Is(failed.CounterpartyErr, ErrMalformedResponse) {
		t.Fatalf("counterparty cause lost: %v", failed.CounterpartyErr)
	}
}

func TestAnalyze_ValidationErrors(t *testing.T) {
	svc := newTestService(t, &routingLLM{jurisdiction: okJurisdiction, counterparty: okCounterparty})

	input := testInput()
	input.CompanyName = " "
	if _, err := svc.Analyze(context.Background(), input); err == nil {
		t.Fatal("expected error for blank company name")
	}

	input = testInput()
	input.Documents = nil
	if _, err := svc.Analyze(context.Background(), input); err == nil {
		t.Fatal("expected error for missing documents")
	}

	input = testInput()
	input.CandidateCodes = nil
	if _, err := svc.Analyze(context.Background(), input); err == nil {
		t.Fatal("expected error for missing candidate codes")
	}
}

func TestAnalyze_CancelledContextPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := &routingLLM{
		jurisdiction: func() (string, error) {
			cancel()
			return okJurisdiction()
		},
		counterparty: func() (string, error) {
			cancel()
			return okCounterparty()
		},
	}
	svc := newTestService(t, client)

	if _, err := svc.Analyze(ctx, testInput()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	keys, err := svc.Store.List(context.Background(), "analysis_results")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("cancelled analysis must not persist results, found %v", keys)
	}
}

func TestAnalyze_CancelAfterOneTaskClassifiedPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Jurisdiction finishes classifying first; the cancellation lands while
	// the counterparty task is still in flight.
	jurisdictionDone := make(chan struct{})
	client := &routingLLM{
		jurisdiction: func() (string, error) {
			defer close(jurisdictionDone)
			return okJurisdiction()
		},
		counterparty: func() (string, error) {
			<-jurisdictionDone
			cancel()
			return okCounterparty()
		},
	}
	svc := newTestService(t, client)

	if _, err := svc.Analyze(ctx, testInput()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	counts, err := svc.Repo.CountByTask(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("cancelled analysis must not persist any task's record, got %v", counts)
	}
	keys, err := svc.Store.List(context.Background(), "analysis_results")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("cancelled analysis must leave no result objects, found %v", keys)
	}
}

func TestAnalyze_DuplicateRequestsGetDistinctIDs(t *testing.T) {
	client := &routingLLM{jurisdiction: okJurisdiction, counterparty: okCounterparty}
	svc := newTestService(t, client)

	first, err := svc.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	second, err := svc.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if first.Jurisdiction.ID == second.Jurisdiction.ID {
		t.Fatal("repeated analyses must create distinct records")
	}

	counts, err := svc.Repo.CountByTask(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[prompts.TaskJurisdiction] != 2 {
		t.Fatalf("expected 2 jurisdiction records, got %d", counts[prompts.TaskJurisdiction])
	}
}

func TestAnalyzeBatch_OneFailureDoesNotStopOthers(t *testing.T) {
	var mu sync.Mutex
	jurisdictionCalls := 0
	client := &routingLLM{
		jurisdiction: func() (string, error) {
			mu.Lock()
			jurisdictionCalls++
			n := jurisdictionCalls
			mu.Unlock()
			if n == 1 {
				return "", llm.ErrUnavailable
			}
			return okJurisdiction()
		},
		counterparty: func() (string, error) { return "", llm.ErrUnavailable },
	}
	svc := newTestService(t, client)

	inputs := []AnalyzeInput{testInput(), testInput(), testInput()}
	items := svc.AnalyzeBatch(context.Background(), inputs)
	if len(items) != 3 {
		t.Fatalf("expected 3 batch items, got %d", len(items))
	}

	failures := 0
	for _, item := range items {
		if item.Err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one fully failed item, got %d", failures)
	}
}

package analyses

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"cais-backend/internal/llm"
	"cais-backend/internal/prompts"
)

type fakeLLM struct {
	replies []string
	errs    []error
	calls   [][]llm.Message
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, messages)
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	return f.replies[idx], err
}

func newTestRegistry(t *testing.T) *prompts.Registry {
	t.Helper()
	r := prompts.NewRegistry(nil)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return r
}

const delawareText = "=== msa.pdf ===\nThis Agreement shall be governed by the laws of the State of Delaware.\n"

func TestClassify_Jurisdiction(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"jurisdiction": "Delaware", "reasoning": "Governing law clause names Delaware.", "citation": "governed by the laws of the State of Delaware"}`,
	}}
	classifier := NewClassifier(client, newTestRegistry(t))

	result, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:         prompts.TaskJurisdiction,
		CompanyName:  "Acme Corp",
		DocumentText: delawareText,
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Value != "Delaware" {
		t.Fatalf("expected Delaware, got %q", result.Value)
	}
	if result.Citation != "governed by the laws of the State of Delaware" {
		t.Fatalf("citation should be kept verbatim, got %q", result.Citation)
	}
	if result.PromptVersion != prompts.SeedLabel {
		t.Fatalf("expected active prompt version, got %q", result.PromptVersion)
	}
	if result.ID == "" {
		t.Fatal("expected generated result id")
	}

	prompt := client.calls[0][1].Content
	if !strings.Contains(prompt, "Acme Corp") || !strings.Contains(prompt, "Delaware") {
		t.Fatalf("rendered prompt missing request data: %q", prompt)
	}
}

func TestClassify_FabricatedCitationCleared(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"jurisdiction": "Delaware", "reasoning": "r", "citation": "a quote that is not in the document"}`,
	}}
	classifier := NewClassifier(client, newTestRegistry(t))

	result, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:         prompts.TaskJurisdiction,
		CompanyName:  "Acme Corp",
		DocumentText: delawareText,
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Citation != "" {
		t.Fatalf("fabricated citation should be cleared, got %q", result.Citation)
	}
	if result.Value != "Delaware" {
		t.Fatalf("value should survive citation clearing, got %q", result.Value)
	}
}

func TestClassify_MalformedReplyRepairedOnce(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`Sure! The jurisdiction is Delaware.`,
		`{"jurisdiction": "Delaware", "reasoning": "r", "citation": ""}`,
	}}
	classifier := NewClassifier(client, newTestRegistry(t))

	result, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:         prompts.TaskJurisdiction,
		CompanyName:  "Acme Corp",
		DocumentText: delawareText,
	})
	if err != nil {
		t.Fatalf("classify after repair: %v", err)
	}
	if result.Value != "Delaware" {
		t.Fatalf("unexpected value %q", result.Value)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected repair round trip, got %d calls", len(client.calls))
	}

	last := client.calls[1][len(client.calls[1])-1].Content
	if !strings.Contains(last, "did not match the schema") {
		t.Fatalf("repair instruction missing: %q", last)
	}
}

func TestClassify_MalformedTwiceFails(t *testing.T) {
	client := &fakeLLM{replies: []string{`not json`, `still not json`}}
	classifier := NewClassifier(client, newTestRegistry(t))

	_, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:         prompts.TaskJurisdiction,
		CompanyName:  "Acme Corp",
		DocumentText: delawareText,
	})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClassify_CounterpartyValidCode(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"code": "BANK", "reasoning": "Counterparty is a chartered bank.", "citation": ""}`,
	}}
	classifier := NewClassifier(client, newTestRegistry(t))

	result, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:           prompts.TaskCounterparty,
		CompanyName:    "Acme Corp",
		DocumentText:   "Agreement with First National Bank.",
		CandidateCodes: map[string]string{"BANK": "Banking institution", "INS": "Insurance provider"},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Value != "BANK" {
		t.Fatalf("expected BANK, got %q", result.Value)
	}
}

func TestClassify_CounterpartyMembershipAcrossCandidateSets(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		codes := make(map[string]string)
		n := 2 + rng.Intn(6)
		for i := 0; i < n; i++ {
			codes[fmt.Sprintf("C%02d_%d", trial, i)] = fmt.Sprintf("Category %d", i)
		}
		var want string
		pick := rng.Intn(n)
		for code := range codes {
			if pick == 0 {
				want = code
			}
			pick--
		}

		client := &fakeLLM{replies: []string{
			fmt.Sprintf(`{"code": %q, "reasoning": "r", "citation": ""}`, want),
		}}
		classifier := NewClassifier(client, newTestRegistry(t))

		result, err := classifier.Classify(context.Background(), ClassificationRequest{
			Task:           prompts.TaskCounterparty,
			CompanyName:    "Acme Corp",
			DocumentText:   "Agreement with a counterparty.",
			CandidateCodes: codes,
		})
		if err != nil {
			t.Fatalf("trial %d: classify: %v", trial, err)
		}
		if result.Value != want {
			t.Fatalf("trial %d: expected %q, got %q", trial, want, result.Value)
		}
		if _, ok := codes[result.Value]; !ok {
			t.Fatalf("trial %d: value %q not in candidate set %v", trial, result.Value, codes)
		}
	}
}

func TestClassify_InvalidCodeRepromptedOnce(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"code": "FINANCE", "reasoning": "r", "citation": ""}`,
		`{"code": "BANK", "reasoning": "r", "citation": ""}`,
	}}
	classifier := NewClassifier(client, newTestRegistry(t))

	result, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:           prompts.TaskCounterparty,
		CompanyName:    "Acme Corp",
		DocumentText:   "Agreement with First National Bank.",
		CandidateCodes: map[string]string{"BANK": "Banking institution"},
	})
	if err != nil {
		t.Fatalf("classify after reselect: %v", err)
	}
	if result.Value != "BANK" {
		t.Fatalf("expected BANK after reselect, got %q", result.Value)
	}

	last := client.calls[1][len(client.calls[1])-1].Content
	if !strings.Contains(last, `"FINANCE"`) || !strings.Contains(last, "BANK") {
		t.Fatalf("reselect instruction should name the bad code and the options: %q", last)
	}
}

func TestClassify_InvalidCodeTwiceFails(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"code": "FINANCE", "reasoning": "r", "citation": ""}`,
		`{"code": "LENDER", "reasoning": "r", "citation": ""}`,
	}}
	classifier := NewClassifier(client, newTestRegistry(t))

	_, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:           prompts.TaskCounterparty,
		CompanyName:    "Acme Corp",
		DocumentText:   "Agreement with First National Bank.",
		CandidateCodes: map[string]string{"BANK": "Banking institution"},
	})
	if !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
}

func TestClassify_ExplicitVersionPinned(t *testing.T) {
	registry := newTestRegistry(t)
	v := prompts.Version{Task: prompts.TaskJurisdiction, Label: "v2", Template: "v2 prompt {{DOCUMENT_TEXT}}"}
	if err := registry.Create(context.Background(), v); err != nil {
		t.Fatalf("create version: %v", err)
	}

	client := &fakeLLM{replies: []string{`{"jurisdiction": "New York", "reasoning": "r", "citation": ""}`}}
	classifier := NewClassifier(client, registry)

	result, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:          prompts.TaskJurisdiction,
		CompanyName:   "Acme Corp",
		DocumentText:  "text",
		PromptVersion: "v2",
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.PromptVersion != "v2" {
		t.Fatalf("expected pinned version v2, got %q", result.PromptVersion)
	}
	if !strings.Contains(client.calls[0][1].Content, "v2 prompt") {
		t.Fatalf("expected v2 template to be rendered: %q", client.calls[0][1].Content)
	}

	if _, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:          prompts.TaskJurisdiction,
		DocumentText:  "text",
		PromptVersion: "missing",
	}); !errors.Is(err, prompts.ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestClassify_ProviderErrorPropagates(t *testing.T) {
	client := &fakeLLM{replies: []string{""}, errs: []error{llm.ErrUnavailable}}
	classifier := NewClassifier(client, newTestRegistry(t))

	_, err := classifier.Classify(context.Background(), ClassificationRequest{
		Task:         prompts.TaskJurisdiction,
		CompanyName:  "Acme Corp",
		DocumentText: delawareText,
	})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

package analyses

import (
	"time"

	"cais-backend/internal/prompts"
)

// ClassificationRequest carries everything one task needs to classify.
type ClassificationRequest struct {
	Task           prompts.Task
	CompanyName    string
	DocumentText   string
	DocumentNames  []string
	CandidateCodes map[string]string
	PromptVersion  string // empty means the task's active version
}

// ClassificationResult is the stored outcome of one classification task.
type ClassificationResult struct {
	ID             string            `json:"id"`
	Task           prompts.Task      `json:"task"`
	CompanyName    string            `json:"companyName"`
	Value          string            `json:"value"`
	Reasoning      string            `json:"reasoning"`
	Citation       string            `json:"citation"`
	PromptVersion  string            `json:"promptVersion"`
	DocumentNames  []string          `json:"documentNames"`
	DocumentText   string            `json:"-"`
	CandidateCodes map[string]string `json:"-"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Analysis is the combined outcome of the two classification tasks over one
// document set. Each side succeeds or fails on its own.
type Analysis struct {
	CompanyName     string
	Jurisdiction    *ClassificationResult
	JurisdictionErr error
	Counterparty    *ClassificationResult
	CounterpartyErr error
}

// UploadedFile is one raw document handed to Analyze.
type UploadedFile struct {
	Name string
	Data []byte
}

// AnalyzeInput is a full dual-task analysis request.
type AnalyzeInput struct {
	CompanyName    string
	Documents      []UploadedFile
	CandidateCodes map[string]string
	PromptVersion  string
}

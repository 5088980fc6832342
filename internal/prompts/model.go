package prompts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Task identifies a classification task with its own prompt lineage.
type Task string

const (
	TaskJurisdiction Task = "jurisdiction"
	TaskCounterparty Task = "counterparty"
)

// Tasks lists all known tasks.
func Tasks() []Task {
	return []Task{TaskJurisdiction, TaskCounterparty}
}

// ParseTask validates a task name from user input.
func ParseTask(raw string) (Task, error) {
	switch Task(strings.ToLower(strings.TrimSpace(raw))) {
	case TaskJurisdiction:
		return TaskJurisdiction, nil
	case TaskCounterparty:
		return TaskCounterparty, nil
	default:
		return "", fmt.Errorf("unknown task %q", raw)
	}
}

var (
	// ErrUnknownVersion is returned when a version label does not exist for a task.
	ErrUnknownVersion = errors.New("unknown prompt version")
	// ErrVersionExists is returned when creating a version under a label already taken.
	ErrVersionExists = errors.New("prompt version already exists")
)

// Template placeholders filled at render time.
const (
	PlaceholderCompanyName  = "{{COMPANY_NAME}}"
	PlaceholderDocumentText = "{{DOCUMENT_TEXT}}"
	PlaceholderCodes        = "{{AVAILABLE_CODES}}"
)

// Version is one immutable prompt template in a task lineage.
type Version struct {
	Task      Task      `json:"task"`
	Label     string    `json:"label"`
	Template  string    `json:"template"`
	CreatedAt time.Time `json:"createdAt"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
}

// Render fills the version's placeholders with request data.
func (v Version) Render(companyName, documentText string, codes map[string]string) string {
	replacer := strings.NewReplacer(
		PlaceholderCompanyName, companyName,
		PlaceholderDocumentText, documentText,
		PlaceholderCodes, FormatCodes(codes),
	)
	return replacer.Replace(v.Template)
}

// FormatCodes renders a candidate code map as sorted "CODE: description" lines.
func FormatCodes(codes map[string]string) string {
	if len(codes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, code := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(code)
		if desc := codes[code]; desc != "" {
			b.WriteString(": ")
			b.WriteString(desc)
		}
	}
	return b.String()
}

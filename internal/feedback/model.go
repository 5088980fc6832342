package feedback

import (
	"errors"
	"time"

	"cais-backend/internal/prompts"
)

var (
	// ErrUnknownResult is returned when feedback references a result that
	// does not exist.
	ErrUnknownResult = errors.New("unknown classification result")
	// ErrMissingCorrection is returned when feedback marks a result wrong
	// without saying what the right answer was.
	ErrMissingCorrection = errors.New("corrected value is required when result is marked incorrect")
	// ErrInvalidCorrection is returned when a counterparty correction names a
	// code outside the result's candidate set.
	ErrInvalidCorrection = errors.New("corrected value is not a known candidate code")
)

// Feedback is one reviewer verdict on a stored classification result.
type Feedback struct {
	ID             string       `json:"id"`
	ResultID       string       `json:"resultId"`
	Task           prompts.Task `json:"task"`
	IsCorrect      bool         `json:"isCorrect"`
	CorrectedValue string       `json:"correctedValue,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// TrainingExample is the labeled input/output pair derived from feedback.
// It carries the full classification context so it can be replayed against
// any prompt version.
type TrainingExample struct {
	ID             string            `json:"id"`
	FeedbackID     string            `json:"feedbackId"`
	Task           prompts.Task      `json:"task"`
	CompanyName    string            `json:"companyName"`
	DocumentText   string            `json:"documentText"`
	CandidateCodes map[string]string `json:"candidateCodes,omitempty"`
	ExpectedValue  string            `json:"expectedValue"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Stats summarizes reviewer feedback per task.
type Stats struct {
	Total   int64
	Correct int64
}

// Window restricts queries to a creation-time range. Zero bounds are open:
// the range is [From, To), and an all-zero window matches everything.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

package usage

import (
	"context"
	"sort"

	"cais-backend/internal/feedback"
	"cais-backend/internal/prompts"
)

// ResultsGateway is the slice of the analyses repository usage reads from.
type ResultsGateway interface {
	CountByTask(ctx context.Context) (map[prompts.Task]int64, error)
}

// FeedbackGateway is the slice of the feedback repository usage reads from.
type FeedbackGateway interface {
	CountByTask(ctx context.Context) (map[prompts.Task]feedback.Stats, error)
	CountByDay(ctx context.Context, task prompts.Task) (map[string]feedback.Stats, error)
}

// DayStats is one day of reviewer activity for a task.
type DayStats struct {
	Date     string   `json:"date"`
	Feedback int64    `json:"feedback"`
	Correct  int64    `json:"correct"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// TaskSummary aggregates activity and measured accuracy for one task.
type TaskSummary struct {
	Task          prompts.Task `json:"task"`
	Results       int64        `json:"results"`
	Feedback      int64        `json:"feedback"`
	Correct       int64        `json:"correct"`
	Accuracy      *float64     `json:"accuracy,omitempty"`
	ActiveVersion string       `json:"activeVersion,omitempty"`
	Daily         []DayStats   `json:"daily,omitempty"`
}

// Summary is the full usage projection.
type Summary struct {
	Tasks        []TaskSummary `json:"tasks"`
	TotalResults int64         `json:"totalResults"`
}

// Service assembles the usage projection from the write-side repositories.
type Service struct {
	Results  ResultsGateway
	Feedback FeedbackGateway
	Registry *prompts.Registry
}

// Summary computes per-task totals and feedback-derived accuracy. Accuracy is
// only reported once a task has feedback.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	resultCounts, err := s.Results.CountByTask(ctx)
	if err != nil {
		return Summary{}, err
	}
	feedbackCounts, err := s.Feedback.CountByTask(ctx)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, task := range prompts.Tasks() {
		item := TaskSummary{
			Task:     task,
			Results:  resultCounts[task],
			Feedback: feedbackCounts[task].Total,
			Correct:  feedbackCounts[task].Correct,
		}
		if item.Feedback > 0 {
			accuracy := float64(item.Correct) / float64(item.Feedback)
			item.Accuracy = &accuracy

			daily, err := s.Feedback.CountByDay(ctx, task)
			if err != nil {
				return Summary{}, err
			}
			item.Daily = dailySeries(daily)
		}
		if s.Registry != nil {
			if active, err := s.Registry.Active(task); err == nil {
				item.ActiveVersion = active.Label
			}
		}
		summary.Tasks = append(summary.Tasks, item)
		summary.TotalResults += item.Results
	}
	return summary, nil
}

// dailySeries turns the per-day map into a date-sorted slice so accuracy
// over time renders in order.
func dailySeries(daily map[string]feedback.Stats) []DayStats {
	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]DayStats, 0, len(days))
	for _, day := range days {
		stats := daily[day]
		item := DayStats{Date: day, Feedback: stats.Total, Correct: stats.Correct}
		if stats.Total > 0 {
			accuracy := float64(stats.Correct) / float64(stats.Total)
			item.Accuracy = &accuracy
		}
		out = append(out, item)
	}
	return out
}

package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"cais-backend/internal/prompts"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// CreateFeedback inserts a feedback record.
func (r *PGRepo) CreateFeedback(ctx context.Context, fb Feedback) error {
	const query = `
INSERT INTO feedback (id, result_id, task, is_correct, corrected_value, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	var corrected any
	if fb.CorrectedValue != "" {
		corrected = fb.CorrectedValue
	}
	_, err := r.DB.ExecContext(ctx, query,
		fb.ID,
		fb.ResultID,
		string(fb.Task),
		fb.IsCorrect,
		corrected,
		fb.CreatedAt,
	)
	return err
}

// CreateTrainingExample inserts a derived training example.
func (r *PGRepo) CreateTrainingExample(ctx context.Context, example TrainingExample) error {
	const query = `
INSERT INTO training_examples (id, feedback_id, task, company_name, document_text, candidate_codes, expected_value, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	var codes any
	if example.CandidateCodes != nil {
		raw, err := json.Marshal(example.CandidateCodes)
		if err != nil {
			return err
		}
		codes = raw
	}
	_, err := r.DB.ExecContext(ctx, query,
		example.ID,
		example.FeedbackID,
		string(example.Task),
		example.CompanyName,
		example.DocumentText,
		codes,
		example.ExpectedValue,
		example.CreatedAt,
	)
	return err
}

// ListTrainingExamples returns a task's examples inside the window in
// ascending creation order.
func (r *PGRepo) ListTrainingExamples(ctx context.Context, task prompts.Task, window Window, offset, limit int) ([]TrainingExample, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
SELECT id, feedback_id, task, company_name, document_text, candidate_codes, expected_value, created_at
FROM training_examples
WHERE task = $1`
	args := []any{string(task)}
	if !window.From.IsZero() {
		args = append(args, window.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !window.To.IsZero() {
		args = append(args, window.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	examples := make([]TrainingExample, 0)
	for rows.Next() {
		var example TrainingExample
		var taskName string
		var codes []byte
		if err := rows.Scan(
			&example.ID,
			&example.FeedbackID,
			&taskName,
			&example.CompanyName,
			&example.DocumentText,
			&codes,
			&example.ExpectedValue,
			&example.CreatedAt,
		); err != nil {
			return nil, err
		}
		example.Task = prompts.Task(taskName)
		if len(codes) > 0 {
			if err := json.Unmarshal(codes, &example.CandidateCodes); err != nil {
				return nil, err
			}
		}
		examples = append(examples, example)
	}
	return examples, rows.Err()
}

// CountByTask returns feedback totals per task.
func (r *PGRepo) CountByTask(ctx context.Context) (map[prompts.Task]Stats, error) {
	const query = `
SELECT task, COUNT(*), COUNT(*) FILTER (WHERE is_correct)
FROM feedback
GROUP BY task`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[prompts.Task]Stats)
	for rows.Next() {
		var task string
		var stats Stats
		if err := rows.Scan(&task, &stats.Total, &stats.Correct); err != nil {
			return nil, err
		}
		counts[prompts.Task(task)] = stats
	}
	return counts, rows.Err()
}

// CountByDay returns a task's feedback totals keyed by UTC date.
func (r *PGRepo) CountByDay(ctx context.Context, task prompts.Task) (map[string]Stats, error) {
	const query = `
SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*), COUNT(*) FILTER (WHERE is_correct)
FROM feedback
WHERE task = $1
GROUP BY 1`
	rows, err := r.DB.QueryContext(ctx, query, string(task))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]Stats)
	for rows.Next() {
		var day string
		var stats Stats
		if err := rows.Scan(&day, &stats.Total, &stats.Correct); err != nil {
			return nil, err
		}
		counts[day] = stats
	}
	return counts, rows.Err()
}

var _ Repo = (*PGRepo)(nil)

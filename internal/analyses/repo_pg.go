package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"cais-backend/internal/prompts"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new classification result.
func (r *PGRepo) Create(ctx context.Context, result ClassificationResult) error {
	const query = `
INSERT INTO classification_results (
	id, task, company_name, value, reasoning, citation, prompt_version,
	document_names, document_text, candidate_codes, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	names, err := json.Marshal(result.DocumentNames)
	if err != nil {
		return err
	}
	codes, err := marshalNullableJSON(result.CandidateCodes)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		result.ID,
		string(result.Task),
		result.CompanyName,
		result.Value,
		result.Reasoning,
		result.Citation,
		result.PromptVersion,
		names,
		result.DocumentText,
		codes,
		result.CreatedAt,
	)
	return err
}

// GetByID returns a classification result by ID.
func (r *PGRepo) GetByID(ctx context.Context, resultID string) (ClassificationResult, error) {
	const query = `
SELECT id, task, company_name, value, reasoning, citation, prompt_version,
       document_names, document_text, candidate_codes, created_at
FROM classification_results
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, resultID)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ClassificationResult{}, ErrNotFound
	}
	return result, err
}

// List returns results for a task, newest first, with limit/offset.
func (r *PGRepo) List(ctx context.Context, task prompts.Task, limit, offset int) ([]ClassificationResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, task, company_name, value, reasoning, citation, prompt_version,
       document_names, document_text, candidate_codes, created_at
FROM classification_results
WHERE task = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, string(task), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]ClassificationResult, 0)
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// CountByTask returns how many results each task has recorded.
func (r *PGRepo) CountByTask(ctx context.Context) (map[prompts.Task]int64, error) {
	const query = `SELECT task, COUNT(*) FROM classification_results GROUP BY task`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[prompts.Task]int64)
	for rows.Next() {
		var task string
		var count int64
		if err := rows.Scan(&task, &count); err != nil {
			return nil, err
		}
		counts[prompts.Task(task)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (ClassificationResult, error) {
	var result ClassificationResult
	var task string
	var names []byte
	var codes []byte
	if err := row.Scan(
		&result.ID,
		&task,
		&result.CompanyName,
		&result.Value,
		&result.Reasoning,
		&result.Citation,
		&result.PromptVersion,
		&names,
		&result.DocumentText,
		&codes,
		&result.CreatedAt,
	); err != nil {
		return ClassificationResult{}, err
	}
	result.Task = prompts.Task(task)
	if len(names) > 0 {
		if err := json.Unmarshal(names, &result.DocumentNames); err != nil {
			return ClassificationResult{}, err
		}
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &result.CandidateCodes); err != nil {
			return ClassificationResult{}, err
		}
	}
	return result, nil
}

func marshalNullableJSON(v map[string]string) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

var _ Repo = (*PGRepo)(nil)

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const generationColumns = "id, project_id, job_id, name, artifact, created_at"

// CreateGeneration records a user-visible result derived from a
// completed job. The producing job must exist and be completed.
func (s *Store) CreateGeneration(ctx context.Context, jobID, name string) (*Generation, error) {
	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != StateCompleted || job.Output == "" {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.State, ErrInvalidState)
	}
	if name == "" {
		name = fmt.Sprintf("%s %s", job.Operation, job.CreatedAt.Format("2006-01-02 15:04"))
	}

	id := uuid.NewString()
	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO generations (id, project_id, job_id, name, artifact, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		job.ProjectID,
		job.ID,
		name,
		job.Output,
		formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert generation: %w", err)
	}
	return s.GetGeneration(ctx, id)
}

// GetGeneration fetches a generation by identifier. Missing rows,
// deleted ones included, return an error wrapping ErrNotFound.
func (s *Store) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return gen, nil
}

// GenerationsForProject lists a project's generations, newest first.
func (s *Store) GenerationsForProject(ctx context.Context, projectID string) ([]*Generation, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+generationColumns+` FROM generations WHERE project_id = ? ORDER BY created_at DESC, id DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var gens []*Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, gen)
	}
	return gens, rows.Err()
}

// DeleteGeneration removes the user-facing pointer. The job that
// produced it stays in the ledger as an audit record.
func (s *Store) DeleteGeneration(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM generations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanGeneration(scanner interface{ Scan(dest ...any) error }) (*Generation, error) {
	var (
		id         string
		projectID  string
		jobID      string
		name       string
		artifact   string
		createdRaw string
	)
	if err := scanner.Scan(&id, &projectID, &jobID, &name, &artifact, &createdRaw); err != nil {
		return nil, err
	}
	gen := &Generation{
		ID:        id,
		ProjectID: projectID,
		JobID:     jobID,
		Name:      name,
		Artifact:  artifact,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		gen.CreatedAt = created
	}
	return gen, nil
}

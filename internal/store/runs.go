package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

// SaveRun stores a run and one summary row per comparison
func (s *Store) SaveRun(ctx context.Context, run *model.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	failures := 0
	for _, c := range run.Comparisons {
		if len(c.Errors) > 0 {
			failures++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, created_at, config_hash, treatment, outcome, comparisons, failures, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC(), run.ConfigHash, run.Treatment, run.Outcome,
		len(run.Comparisons), failures, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO comparisons
		(run_id, control, level_did, level_p, slope_did, slope_p, trends_verdict, ratio_ci_upper, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range run.Comparisons {
		var levelDiD, levelP, slopeDiD, slopeP, ciUpper sql.NullFloat64
		var verdict sql.NullString
		if c.Level != nil {
			levelDiD = sql.NullFloat64{Float64: c.Level.Coefficient, Valid: true}
			levelP = sql.NullFloat64{Float64: c.Level.PValue, Valid: true}
		}
		if c.Slope != nil {
			slopeDiD = sql.NullFloat64{Float64: c.Slope.Coefficient, Valid: true}
			slopeP = sql.NullFloat64{Float64: c.Slope.PValue, Valid: true}
		}
		if len(c.Trends) > 0 {
			verdict = sql.NullString{String: string(c.Trends[0].Verdict), Valid: true}
		}
		if c.Ratchet != nil && finite(c.Ratchet.CIUpper) {
			ciUpper = sql.NullFloat64{Float64: c.Ratchet.CIUpper, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, c.Control, levelDiD, levelP, slopeDiD, slopeP, verdict, ciUpper, len(c.Errors)); err != nil {
			return fmt.Errorf("failed to insert comparison %s: %w", c.Control, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun loads a stored run by id
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	var run model.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the newest runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	query := `SELECT id, created_at, config_hash, treatment, comparisons, failures
		FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunSummary
	for rows.Next() {
		var r model.RunSummary
		var created time.Time
		if err := rows.Scan(&r.ID, &created, &r.ConfigHash, &r.Treatment, &r.Comparisons, &r.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt = created.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its comparison rows
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comparisons WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete comparisons: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

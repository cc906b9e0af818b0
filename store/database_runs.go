// database_runs.go - CRUD fuer runs und steps

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (db *database) insertRun(id, preset, config, status string) error {
	_, err := db.conn.Exec(`INSERT INTO runs (id, preset, config, status) VALUES (?, ?, ?, ?)`, id, preset, config, status)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (db *database) insertStep(runID string, s Step) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO steps (run_id, step, loss, reconstruction, kl)
		VALUES (?, ?, ?, ?, ?)
	`, runID, s.Step, s.Loss, s.Reconstruction, s.KL)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

func (db *database) finishRun(id, status string, at time.Time) error {
	res, err := db.conn.Exec(`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`, status, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `
	r.id, r.created_at, r.preset, r.config, r.status, r.finished_at,
	COUNT(s.step),
	COALESCE((SELECT loss FROM steps WHERE run_id = r.id ORDER BY step DESC LIMIT 1), 0)
`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.Preset, &r.Config, &r.Status, &finished, &r.Steps, &r.LastLoss); err != nil {
		return r, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (db *database) getRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(`
		SELECT `+runColumns+`
		FROM runs r
		LEFT JOIN steps s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (db *database) getRun(id string) (Run, error) {
	row := db.conn.QueryRow(`
		SELECT `+runColumns+`
		FROM runs r
		LEFT JOIN steps s ON s.run_id = r.id
		WHERE r.id = ?
		GROUP BY r.id
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return r, fmt.Errorf("query run: %w", err)
	}
	return r, nil
}

func (db *database) getSteps(runID string) ([]Step, error) {
	rows, err := db.conn.Query(`
		SELECT step, loss, reconstruction, kl
		FROM steps
		WHERE run_id = ?
		ORDER BY step
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.Step, &s.Loss, &s.Reconstruction, &s.KL); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (db *database) deleteRun(id string) error {
	res, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

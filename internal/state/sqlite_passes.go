package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrPassNotFound is returned when no pass has the requested ID.
var ErrPassNotFound = errors.New("pass not found")

// StartPass records a running pass.
func (s *SQLiteStore) StartPass(mode, fingerprint string) (*Pass, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	pass := &Pass{
		ID:          generateID(),
		Mode:        mode,
		Fingerprint: fingerprint,
		Status:      PassStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO passes (id, mode, fingerprint, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		pass.ID, pass.Mode, pass.Fingerprint, string(pass.Status), pass.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pass: %w", err)
	}
	return pass, nil
}

// CompletePass records the outcome of a pass.
func (s *SQLiteStore) CompletePass(id string, outcome PassOutcome) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	status := outcome.Status
	if status == "" {
		status = PassStatusCompleted
		if outcome.Err != nil {
			status = PassStatusFailed
		}
	}
	var errMsg sql.NullString
	if outcome.Err != nil {
		errMsg = sql.NullString{String: outcome.Err.Error(), Valid: true}
	}

	res, err := s.db.Exec(
		`UPDATE passes SET status = ?, files = ?, findings = ?, errors = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), outcome.Files, outcome.Findings, outcome.Errors, time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete pass: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete pass: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPassNotFound, id)
	}
	return nil
}

const passColumns = `id, mode, fingerprint, status, files, findings, errors, started_at, completed_at, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (*Pass, error) {
	pass := &Pass{}
	var status string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	if err := row.Scan(&pass.ID, &pass.Mode, &pass.Fingerprint, &status,
		&pass.Files, &pass.Findings, &pass.Errors,
		&pass.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}

	pass.Status = PassStatus(status)
	if completedAt.Valid {
		pass.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		pass.Error = errMsg.String
	}
	return pass, nil
}

// GetPass retrieves a pass by ID.
func (s *SQLiteStore) GetPass(id string) (*Pass, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	pass, err := scanPass(s.db.QueryRow(`SELECT `+passColumns+` FROM passes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPassNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pass: %w", err)
	}
	return pass, nil
}

// RecentPasses returns up to limit passes, newest first.
func (s *SQLiteStore) RecentPasses(limit int) ([]*Pass, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT `+passColumns+` FROM passes ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list passes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var passes []*Pass
	for rows.Next() {
		pass, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		passes = append(passes, pass)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list passes: %w", err)
	}
	return passes, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"profilebus/internal/models"
)

const profileColumns = `id, active, dll_path, token_name, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Active, &p.DLLPath, &p.TokenName, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns every profile ordered by id.
func (db *DB) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProfile returns the profile with id or ErrProfileNotFound.
func (db *DB) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	p, err := scanProfile(db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrProfileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %d: %w", id, err)
	}
	return p, nil
}

// GetActiveProfile returns the active profile or ErrProfileNotFound when
// none is active.
func (db *DB) GetActiveProfile(ctx context.Context) (*models.Profile, error) {
	p, err := scanProfile(db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE active = 1 ORDER BY id LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active profile", ErrProfileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get active profile: %w", err)
	}
	return p, nil
}

// CreateProfile inserts p and fills in its id and timestamps.
func (db *DB) CreateProfile(ctx context.Context, p *models.Profile) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO profiles (active, dll_path, token_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.Active, p.DLLPath, p.TokenName, now, now)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	db.logger.Info().Int64("profile_id", id).Str("token_name", p.TokenName).Msg("profile created")
	return nil
}

// UpdateProfile overwrites the profile with p.ID and clears the active flag
// on every other profile in the same transaction.
func (db *DB) UpdateProfile(ctx context.Context, p *models.Profile) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE profiles SET active = ?, dll_path = ?, token_name = ?, updated_at = ? WHERE id = ?`,
		p.Active, p.DLLPath, p.TokenName, now, p.ID)
	if err != nil {
		return fmt.Errorf("update profile %d: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update profile %d: %w", p.ID, err)
	} else if n == 0 {
		return fmt.Errorf("%w: id %d", ErrProfileNotFound, p.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET active = 0, updated_at = ? WHERE id != ? AND active = 1`, now, p.ID); err != nil {
		return fmt.Errorf("deactivate other profiles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	p.UpdatedAt = now
	db.logger.Info().Int64("profile_id", p.ID).Bool("active", p.Active).Msg("profile updated")
	return nil
}

// DeleteProfile removes the profile with id.
func (db *DB) DeleteProfile(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrProfileNotFound, id)
	}
	db.logger.Info().Int64("profile_id", id).Msg("profile deleted")
	return nil
}

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const licenseColumns = `
	id, license_key, client_name, client_email, hardware_id, machine_name,
	issued_at, expires_at, version, features, signature, is_active,
	validation_count, max_validations, last_validation, created_at, updated_at
`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*license.License, error) {
	var lic license.License
	err := row.Scan(
		&lic.ID, &lic.LicenseKey, &lic.ClientName, &lic.ClientEmail,
		&lic.HardwareID, &lic.MachineName, &lic.IssuedAt, &lic.ExpiresAt,
		&lic.Version, &lic.Features, &lic.Signature, &lic.IsActive,
		&lic.ValidationCount, &lic.MaxValidations, &lic.LastValidation,
		&lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lic, nil
}

// GetLicenseByKey returns the license with the given key, or nil if no
// record exists.
func (db *DB) GetLicenseByKey(ctx context.Context, key string) (*license.License, error) {
	lic, err := scanLicense(db.Pool.QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE license_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get license by key: %w", err)
	}
	return lic, nil
}

// CreateLicense persists a new license row. The validation ceiling is not
// caller-supplied; the column default applies. The stored row (including
// generated id, default max_validations, and timestamps) is written back
// into lic.
func (db *DB) CreateLicense(ctx context.Context, lic *license.License) error {
	if lic.ID == uuid.Nil {
		lic.ID = uuid.New()
	}

	row := db.Pool.QueryRow(ctx, `
		INSERT INTO licenses (
			id, license_key, client_name, client_email, hardware_id,
			machine_name, issued_at, expires_at, version, features,
			signature, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING validation_count, max_validations, created_at, updated_at
	`, lic.ID, lic.LicenseKey, lic.ClientName, lic.ClientEmail, lic.HardwareID,
		lic.MachineName, lic.IssuedAt, lic.ExpiresAt, lic.Version, lic.Features,
		lic.Signature, lic.IsActive)

	if err := row.Scan(&lic.ValidationCount, &lic.MaxValidations, &lic.CreatedAt, &lic.UpdatedAt); err != nil {
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

// ConsumeValidation atomically increments the validation counter and stamps
// last_validation, but only while the counter is below max_validations. The
// conditional update rides on the database's row lock, so concurrent
// validations of the same key cannot lose increments or overrun the quota.
// Returns (nil, nil) when the quota is already exhausted.
func (db *DB) ConsumeValidation(ctx context.Context, key string) (*license.License, error) {
	lic, err := scanLicense(db.Pool.QueryRow(ctx, `
		UPDATE licenses
		SET validation_count = validation_count + 1,
		    last_validation = NOW(),
		    updated_at = NOW()
		WHERE license_key = $1 AND validation_count < max_validations
		RETURNING `+licenseColumns,
		key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume validation: %w", err)
	}
	return lic, nil
}

// ListLicenses returns all licenses, newest first.
func (db *DB) ListLicenses(ctx context.Context) ([]*license.License, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+licenseColumns+` FROM licenses ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*license.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

// UpdateLicense updates the mutable administrative fields of a license.
// Nil fields are left unchanged. Returns nil if no record matches the key.
func (db *DB) UpdateLicense(ctx context.Context, key string, isActive *bool, maxValidations *int) (*license.License, error) {
	lic, err := scanLicense(db.Pool.QueryRow(ctx, `
		UPDATE licenses
		SET is_active = COALESCE($2, is_active),
		    max_validations = COALESCE($3, max_validations),
		    updated_at = $4
		WHERE license_key = $1
		RETURNING `+licenseColumns,
		key, isActive, maxValidations, time.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update license: %w", err)
	}
	return lic, nil
}

// DeleteLicense removes a license row (hard revocation). Returns false if
// no record matched.
func (db *DB) DeleteLicense(ctx context.Context, key string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM licenses WHERE license_key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("delete license: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetExpiredActiveLicenses returns licenses past expiry that are still
// flagged active, for the maintenance sweep report.
func (db *DB) GetExpiredActiveLicenses(ctx context.Context) ([]*license.License, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE is_active AND expires_at < NOW() ORDER BY expires_at`)
	if err != nil {
		return nil, fmt.Errorf("get expired licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*license.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

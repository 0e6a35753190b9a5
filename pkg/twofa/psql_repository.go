package twofa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-2fa/pkg/backupcode"
)

// PostgresTwoFARepository implements TwoFARepository using PostgreSQL
type PostgresTwoFARepository struct {
	db DBTX
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// NewPostgresTwoFARepository creates a new PostgreSQL 2FA repository
func NewPostgresTwoFARepository(db DBTX) *PostgresTwoFARepository {
	return &PostgresTwoFARepository{
		db: db,
	}
}

// GetEnrollment retrieves the enrollment for a subject
func (r *PostgresTwoFARepository) GetEnrollment(ctx context.Context, subjectID uuid.UUID) (Enrollment, error) {
	query := `
		SELECT subject_id, state, totp_secret, account_label, issuer_label, backup_codes, created_at, updated_at
		FROM twofa_enrollment
		WHERE subject_id = $1
	`

	var enrollment Enrollment
	var backupCodesJSON []byte
	err := r.db.QueryRow(ctx, query, subjectID).Scan(
		&enrollment.SubjectID,
		&enrollment.State,
		&enrollment.TotpSecret,
		&enrollment.AccountLabel,
		&enrollment.IssuerLabel,
		&backupCodesJSON,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enrollment{}, ErrEnrollmentNotFound
		}
		return Enrollment{}, fmt.Errorf("failed to get enrollment: %w", err)
	}

	if len(backupCodesJSON) > 0 {
		var codes []backupcode.Code
		if err := json.Unmarshal(backupCodesJSON, &codes); err != nil {
			return Enrollment{}, fmt.Errorf("failed to unmarshal backup codes: %w", err)
		}
		enrollment.BackupCodes = codes
	}

	return enrollment, nil
}

// UpsertEnrollment creates or replaces the enrollment for a subject
func (r *PostgresTwoFARepository) UpsertEnrollment(ctx context.Context, enrollment Enrollment) error {
	backupCodesJSON, err := json.Marshal(enrollment.BackupCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}

	query := `
		INSERT INTO twofa_enrollment (
			subject_id, state, totp_secret, account_label, issuer_label, backup_codes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (subject_id) DO UPDATE SET
			state = EXCLUDED.state,
			totp_secret = EXCLUDED.totp_secret,
			account_label = EXCLUDED.account_label,
			issuer_label = EXCLUDED.issuer_label,
			backup_codes = EXCLUDED.backup_codes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.Exec(ctx, query,
		enrollment.SubjectID,
		enrollment.State,
		enrollment.TotpSecret,
		enrollment.AccountLabel,
		enrollment.IssuerLabel,
		backupCodesJSON,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert enrollment: %w", err)
	}

	return nil
}

// DeleteEnrollment removes the enrollment for a subject
func (r *PostgresTwoFARepository) DeleteEnrollment(ctx context.Context, subjectID uuid.UUID) error {
	query := `
		DELETE FROM twofa_enrollment
		WHERE subject_id = $1
	`

	tag, err := r.db.Exec(ctx, query, subjectID)
	if err != nil {
		return fmt.Errorf("failed to delete enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEnrollmentNotFound
	}

	return nil
}

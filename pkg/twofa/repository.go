package twofa

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-2fa/pkg/backupcode"
	"github.com/tendant/simple-2fa/pkg/errors"
)

// EnrollmentState is the lifecycle state of a subject's 2FA enrollment.
type EnrollmentState string

const (
	StateNotEnrolled         EnrollmentState = "not_enrolled"
	StatePendingConfirmation EnrollmentState = "pending_confirmation"
	StateEnrolled            EnrollmentState = "enrolled"
	StateDisabled            EnrollmentState = "disabled"
)

// ErrEnrollmentNotFound is returned by repositories when no enrollment
// record exists for a subject. The service treats absence as NotEnrolled.
var ErrEnrollmentNotFound = errors.New(errors.ErrCodeNotFound, "enrollment not found")

// Enrollment is the persisted 2FA state of one subject. The TOTP secret is
// owned exclusively by that subject and must never be logged; it only
// travels through the provisioning URI and the repository.
type Enrollment struct {
	SubjectID    uuid.UUID         `json:"subject_id"`
	State        EnrollmentState   `json:"state"`
	TotpSecret   string            `json:"totp_secret"`
	AccountLabel string            `json:"account_label"`
	IssuerLabel  string            `json:"issuer_label"`
	BackupCodes  []backupcode.Code `json:"backup_codes"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TwoFARepository defines the persistence interface for enrollments.
// Implementations must be safe for concurrent use.
type TwoFARepository interface {
	GetEnrollment(ctx context.Context, subjectID uuid.UUID) (Enrollment, error)
	UpsertEnrollment(ctx context.Context, enrollment Enrollment) error
	DeleteEnrollment(ctx context.Context, subjectID uuid.UUID) error
}

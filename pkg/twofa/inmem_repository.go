package twofa

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-2fa/pkg/backupcode"
)

// InMemTwoFARepository implements TwoFARepository with an in-memory map.
// Intended for tests and development.
type InMemTwoFARepository struct {
	enrollments map[uuid.UUID]Enrollment
	mutex       sync.RWMutex
}

// NewInMemTwoFARepository creates a new in-memory 2FA repository
func NewInMemTwoFARepository() *InMemTwoFARepository {
	return &InMemTwoFARepository{
		enrollments: make(map[uuid.UUID]Enrollment),
	}
}

// GetEnrollment retrieves the enrollment for a subject
func (r *InMemTwoFARepository) GetEnrollment(ctx context.Context, subjectID uuid.UUID) (Enrollment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	enrollment, exists := r.enrollments[subjectID]
	if !exists {
		return Enrollment{}, ErrEnrollmentNotFound
	}
	return cloneEnrollment(enrollment), nil
}

// UpsertEnrollment creates or replaces the enrollment for a subject
func (r *InMemTwoFARepository) UpsertEnrollment(ctx context.Context, enrollment Enrollment) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.enrollments[enrollment.SubjectID] = cloneEnrollment(enrollment)
	return nil
}

// DeleteEnrollment removes the enrollment for a subject
func (r *InMemTwoFARepository) DeleteEnrollment(ctx context.Context, subjectID uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.enrollments[subjectID]; !exists {
		return ErrEnrollmentNotFound
	}
	delete(r.enrollments, subjectID)
	return nil
}

// cloneEnrollment copies the backup code slice so callers never share the
// stored slice's backing array.
func cloneEnrollment(e Enrollment) Enrollment {
	if e.BackupCodes != nil {
		codes := make([]backupcode.Code, len(e.BackupCodes))
		copy(codes, e.BackupCodes)
		e.BackupCodes = codes
	}
	return e
}

package twofa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// FileTwoFARepository implements TwoFARepository using file-based storage
type FileTwoFARepository struct {
	dataDir     string
	enrollments map[uuid.UUID]Enrollment
	mutex       sync.RWMutex
}

// NewFileTwoFARepository creates a new file-based 2FA repository
func NewFileTwoFARepository(dataDir string) (*FileTwoFARepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileTwoFARepository{
		dataDir:     dataDir,
		enrollments: make(map[uuid.UUID]Enrollment),
	}

	// Load existing data
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// GetEnrollment retrieves the enrollment for a subject
func (r *FileTwoFARepository) GetEnrollment(ctx context.Context, subjectID uuid.UUID) (Enrollment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	enrollment, exists := r.enrollments[subjectID]
	if !exists {
		return Enrollment{}, ErrEnrollmentNotFound
	}
	return cloneEnrollment(enrollment), nil
}

// UpsertEnrollment creates or replaces the enrollment for a subject
func (r *FileTwoFARepository) UpsertEnrollment(ctx context.Context, enrollment Enrollment) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prior, hadPrior := r.enrollments[enrollment.SubjectID]
	r.enrollments[enrollment.SubjectID] = cloneEnrollment(enrollment)

	if err := r.save(); err != nil {
		// Rollback
		if hadPrior {
			r.enrollments[enrollment.SubjectID] = prior
		} else {
			delete(r.enrollments, enrollment.SubjectID)
		}
		return fmt.Errorf("failed to save: %w", err)
	}

	return nil
}

// DeleteEnrollment removes the enrollment for a subject
func (r *FileTwoFARepository) DeleteEnrollment(ctx context.Context, subjectID uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prior, exists := r.enrollments[subjectID]
	if !exists {
		return ErrEnrollmentNotFound
	}
	delete(r.enrollments, subjectID)

	if err := r.save(); err != nil {
		// Rollback
		r.enrollments[subjectID] = prior
		return fmt.Errorf("failed to save: %w", err)
	}

	return nil
}

// load reads enrollment data from file
func (r *FileTwoFARepository) load() error {
	filePath := filepath.Join(r.dataDir, "enrollments.json")

	// If file doesn't exist, start with empty map
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// If file is empty, start with empty map
	if len(data) == 0 {
		return nil
	}

	var enrollments []Enrollment
	if err := json.Unmarshal(data, &enrollments); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	// Convert to map
	r.enrollments = make(map[uuid.UUID]Enrollment)
	for _, enrollment := range enrollments {
		r.enrollments[enrollment.SubjectID] = enrollment
	}

	return nil
}

// save writes enrollment data to file atomically
func (r *FileTwoFARepository) save() error {
	// Convert map to slice
	enrollments := make([]Enrollment, 0, len(r.enrollments))
	for _, enrollment := range r.enrollments {
		enrollments = append(enrollments, enrollment)
	}

	data, err := json.MarshalIndent(enrollments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first, then rename. Secrets live in this file, so
	// it stays owner-readable only.
	tempFile := filepath.Join(r.dataDir, "enrollments.json.tmp")
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	finalFile := filepath.Join(r.dataDir, "enrollments.json")
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

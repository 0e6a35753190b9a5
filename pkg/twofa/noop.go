package twofa

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-2fa/pkg/backupcode"
	"github.com/tendant/simple-2fa/pkg/risk"
	"github.com/tendant/simple-2fa/pkg/totp"
)

// NoOpTwoFactorService is a no-op implementation of TwoFactorService.
// This allows services that depend on TwoFactorService to work without
// actual 2FA functionality when 2FA is not needed/configured.
//
// Mutating methods return errors indicating 2FA is not configured; reads
// report the not-enrolled state.
type NoOpTwoFactorService struct{}

// NewNoOpTwoFactorService creates a new no-op two-factor service.
// Use this when you don't need 2FA functionality.
func NewNoOpTwoFactorService() TwoFactorService {
	return &NoOpTwoFactorService{}
}

func (n *NoOpTwoFactorService) ProvisionSecret(ctx context.Context, subjectID uuid.UUID, accountLabel string) (totp.ProvisioningDescriptor, error) {
	return totp.ProvisioningDescriptor{}, fmt.Errorf("two-factor authentication not configured")
}

func (n *NoOpTwoFactorService) ConfirmEnrollment(ctx context.Context, subjectID uuid.UUID, token string) ([]backupcode.Code, error) {
	return nil, fmt.Errorf("two-factor authentication not configured")
}

func (n *NoOpTwoFactorService) VerifyToken(ctx context.Context, subjectID uuid.UUID, token string) error {
	return fmt.Errorf("two-factor authentication not configured")
}

func (n *NoOpTwoFactorService) VerifyBackupCode(ctx context.Context, subjectID uuid.UUID, code string) error {
	return fmt.Errorf("two-factor authentication not configured")
}

func (n *NoOpTwoFactorService) AssessRisk(ctx context.Context, subjectID uuid.UUID, rc risk.RequestContext) (risk.Assessment, error) {
	return risk.Assessment{}, nil // No 2FA means no step-up, not an error
}

func (n *NoOpTwoFactorService) Disable(ctx context.Context, subjectID uuid.UUID, recoveryToken string) error {
	return fmt.Errorf("two-factor authentication not configured")
}

func (n *NoOpTwoFactorService) ResetEnrollment(ctx context.Context, subjectID uuid.UUID) error {
	return fmt.Errorf("two-factor authentication not configured")
}

func (n *NoOpTwoFactorService) GetEnrollmentState(ctx context.Context, subjectID uuid.UUID) (EnrollmentState, error) {
	return StateNotEnrolled, nil
}

package twofa

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-2fa/pkg/backupcode"
	"github.com/tendant/simple-2fa/pkg/clock"
	"github.com/tendant/simple-2fa/pkg/errors"
	"github.com/tendant/simple-2fa/pkg/ratelimit"
	"github.com/tendant/simple-2fa/pkg/risk"
	"github.com/tendant/simple-2fa/pkg/totp"
)

// TwoFactorService is the high-level API for a subject's second factor:
// enrollment lifecycle, verification, risk assessment and recovery.
type TwoFactorService interface {
	ProvisionSecret(ctx context.Context, subjectID uuid.UUID, accountLabel string) (totp.ProvisioningDescriptor, error)
	ConfirmEnrollment(ctx context.Context, subjectID uuid.UUID, token string) ([]backupcode.Code, error)
	VerifyToken(ctx context.Context, subjectID uuid.UUID, token string) error
	VerifyBackupCode(ctx context.Context, subjectID uuid.UUID, code string) error
	AssessRisk(ctx context.Context, subjectID uuid.UUID, rc risk.RequestContext) (risk.Assessment, error)
	Disable(ctx context.Context, subjectID uuid.UUID, recoveryToken string) error
	ResetEnrollment(ctx context.Context, subjectID uuid.UUID) error
	GetEnrollmentState(ctx context.Context, subjectID uuid.UUID) (EnrollmentState, error)
}

const (
	TOTP_ISSUER = "simple-2fa"

	// Attempt kinds used as rate-limit keys. Failed TOTP and backup code
	// submissions count against separate windows.
	ATTEMPT_KIND_TOTP   = "totp"
	ATTEMPT_KIND_BACKUP = "backup_code"
	ATTEMPT_KIND_ENROLL = "enroll"
)

type TwoFaService struct {
	repository      TwoFARepository
	verifier        *totp.Verifier
	limiter         *ratelimit.SlidingWindowLimiter
	riskEngine      *risk.Engine
	recovery        *RecoveryTokenVerifier
	clock           clock.Clock
	issuer          string
	tokenWindow     uint
	backupCodeCount int
}

type ServiceOption func(*TwoFaService)

// WithClock overrides the time source for timestamps and TOTP verification.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *TwoFaService) {
		s.clock = c
		s.verifier = totp.NewVerifier(totp.WithClock(c))
	}
}

// WithRateLimiter replaces the default limiter (5 attempts / 15 minutes).
func WithRateLimiter(l *ratelimit.SlidingWindowLimiter) ServiceOption {
	return func(s *TwoFaService) {
		s.limiter = l
	}
}

// WithRiskEngine wires a risk engine. Without one, AssessRisk fails closed.
func WithRiskEngine(e *risk.Engine) ServiceOption {
	return func(s *TwoFaService) {
		s.riskEngine = e
	}
}

// WithRecoveryTokenVerifier wires the verifier for administrative recovery
// tokens. Without one, Disable always rejects.
func WithRecoveryTokenVerifier(v *RecoveryTokenVerifier) ServiceOption {
	return func(s *TwoFaService) {
		s.recovery = v
	}
}

// WithTokenWindow overrides the drift tolerance in time steps.
func WithTokenWindow(window uint) ServiceOption {
	return func(s *TwoFaService) {
		s.tokenWindow = window
	}
}

// WithBackupCodeCount overrides how many backup codes a confirmation issues.
func WithBackupCodeCount(count int) ServiceOption {
	return func(s *TwoFaService) {
		s.backupCodeCount = count
	}
}

// WithIssuer overrides the issuer label embedded in provisioning URIs.
func WithIssuer(issuer string) ServiceOption {
	return func(s *TwoFaService) {
		s.issuer = issuer
	}
}

func NewTwoFaService(repository TwoFARepository, opts ...ServiceOption) *TwoFaService {
	s := &TwoFaService{
		repository:      repository,
		verifier:        totp.NewVerifier(),
		limiter:         ratelimit.NewSlidingWindowLimiter(ratelimit.DefaultThreshold, ratelimit.DefaultWindow),
		clock:           clock.NewSystemClock(),
		issuer:          TOTP_ISSUER,
		tokenWindow:     totp.DefaultWindow,
		backupCodeCount: backupcode.DefaultCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProvisionSecret generates a fresh secret for a subject and stores the
// enrollment as pending confirmation. Re-provisioning while still pending
// supersedes the earlier secret. An already-enrolled subject must disable
// first; a disabled subject must reset first.
func (s *TwoFaService) ProvisionSecret(ctx context.Context, subjectID uuid.UUID, accountLabel string) (totp.ProvisioningDescriptor, error) {
	enrollment, err := s.getEnrollment(ctx, subjectID)
	if err != nil {
		return totp.ProvisioningDescriptor{}, err
	}

	switch enrollment.State {
	case StateEnrolled:
		return totp.ProvisioningDescriptor{}, errors.New(errors.ErrCodeAlreadyExists, "subject is already enrolled")
	case StateDisabled:
		return totp.ProvisioningDescriptor{}, errors.New(errors.ErrCodeInvalidState, "enrollment is disabled, reset it before provisioning")
	}

	descriptor, err := totp.Provision(accountLabel, s.issuer)
	if err != nil {
		return totp.ProvisioningDescriptor{}, err
	}

	now := s.clock.Now().UTC()
	updated := Enrollment{
		SubjectID:    subjectID,
		State:        StatePendingConfirmation,
		TotpSecret:   descriptor.Secret,
		AccountLabel: accountLabel,
		IssuerLabel:  s.issuer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if enrollment.State == StatePendingConfirmation {
		updated.CreatedAt = enrollment.CreatedAt
	}

	if err := s.repository.UpsertEnrollment(ctx, updated); err != nil {
		slog.Error("Failed to store pending enrollment", "subjectId", subjectID, "error", err)
		return totp.ProvisioningDescriptor{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to store enrollment")
	}

	slog.Info("Provisioned 2FA secret", "subjectId", subjectID, "state", StatePendingConfirmation)
	return descriptor, nil
}

// ConfirmEnrollment proves the subject's authenticator holds the pending
// secret. On success the enrollment becomes active and a fresh backup code
// set is issued; this is the only time the codes are returned in full.
func (s *TwoFaService) ConfirmEnrollment(ctx context.Context, subjectID uuid.UUID, token string) ([]backupcode.Code, error) {
	enrollment, err := s.getEnrollment(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if enrollment.State != StatePendingConfirmation {
		return nil, errors.New(errors.ErrCodeInvalidState, "no enrollment pending confirmation")
	}

	if err := s.checkRateLimit(subjectID, ATTEMPT_KIND_ENROLL); err != nil {
		return nil, err
	}

	if !s.verifier.Verify(enrollment.TotpSecret, token, s.tokenWindow) {
		slog.Info("Enrollment confirmation failed", "subjectId", subjectID)
		return nil, errors.New(errors.ErrCodeInvalidToken, "token verification failed")
	}

	codes, err := backupcode.Generate(s.backupCodeCount)
	if err != nil {
		return nil, err
	}

	enrollment.State = StateEnrolled
	enrollment.BackupCodes = codes
	enrollment.UpdatedAt = s.clock.Now().UTC()
	if err := s.repository.UpsertEnrollment(ctx, enrollment); err != nil {
		slog.Error("Failed to store confirmed enrollment", "subjectId", subjectID, "error", err)
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to store enrollment")
	}

	s.limiter.Clear(subjectID.String(), ATTEMPT_KIND_ENROLL)
	slog.Info("2FA enrollment confirmed", "subjectId", subjectID, "backupCodes", len(codes))
	return codes, nil
}

// VerifyToken checks a TOTP code for an enrolled subject. Every submission,
// valid or not, is recorded against the subject's totp attempt window before
// the code is checked; a success clears the window.
//
// A code that already verified once still verifies for the rest of its
// window; successful steps are not remembered.
func (s *TwoFaService) VerifyToken(ctx context.Context, subjectID uuid.UUID, token string) error {
	enrollment, err := s.getEnrollment(ctx, subjectID)
	if err != nil {
		return err
	}
	if enrollment.State != StateEnrolled {
		return errors.New(errors.ErrCodeNotEnrolled, "subject is not enrolled")
	}

	if err := s.checkRateLimit(subjectID, ATTEMPT_KIND_TOTP); err != nil {
		return err
	}

	if !s.verifier.Verify(enrollment.TotpSecret, token, s.tokenWindow) {
		slog.Info("Token verification failed", "subjectId", subjectID, "kind", ATTEMPT_KIND_TOTP)
		return errors.New(errors.ErrCodeInvalidToken, "token verification failed")
	}

	s.limiter.Clear(subjectID.String(), ATTEMPT_KIND_TOTP)
	slog.Info("Token verified", "subjectId", subjectID, "kind", ATTEMPT_KIND_TOTP)
	return nil
}

// VerifyBackupCode consumes a single-use backup code for an enrolled
// subject. A code that matches a spent entry reports CODE_ALREADY_USED so the
// subject learns the code was burned, not that it never existed.
func (s *TwoFaService) VerifyBackupCode(ctx context.Context, subjectID uuid.UUID, code string) error {
	enrollment, err := s.getEnrollment(ctx, subjectID)
	if err != nil {
		return err
	}
	if enrollment.State != StateEnrolled {
		return errors.New(errors.ErrCodeNotEnrolled, "subject is not enrolled")
	}

	if err := s.checkRateLimit(subjectID, ATTEMPT_KIND_BACKUP); err != nil {
		return err
	}

	if !backupcode.ValidateFormat(code) {
		slog.Info("Backup code verification failed", "subjectId", subjectID, "reason", "malformed")
		return errors.New(errors.ErrCodeInvalidCode, "backup code verification failed")
	}

	if err := backupcode.Consume(enrollment.BackupCodes, code, s.clock.Now().UTC()); err != nil {
		slog.Info("Backup code verification failed", "subjectId", subjectID, "kind", ATTEMPT_KIND_BACKUP)
		return err
	}

	enrollment.UpdatedAt = s.clock.Now().UTC()
	if err := s.repository.UpsertEnrollment(ctx, enrollment); err != nil {
		slog.Error("Failed to persist consumed backup code", "subjectId", subjectID, "error", err)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to store enrollment")
	}

	s.limiter.Clear(subjectID.String(), ATTEMPT_KIND_BACKUP)
	slog.Info("Backup code verified", "subjectId", subjectID)
	return nil
}

// AssessRisk computes the step-up decision for one authentication attempt.
// Without a configured risk engine the service fails closed.
func (s *TwoFaService) AssessRisk(ctx context.Context, subjectID uuid.UUID, rc risk.RequestContext) (risk.Assessment, error) {
	if s.riskEngine == nil {
		slog.Warn("No risk engine configured, failing closed", "subjectId", subjectID)
		return risk.Assessment{RequiresStepUp: true}, nil
	}
	if rc.At.IsZero() {
		rc.At = s.clock.Now()
	}
	return s.riskEngine.Assess(ctx, subjectID, rc), nil
}

// Disable turns off 2FA for a subject holding a valid recovery token. The
// enrollment record is kept in the disabled state so the event stays
// auditable; re-enabling requires a reset and a fresh provisioning round.
func (s *TwoFaService) Disable(ctx context.Context, subjectID uuid.UUID, recoveryToken string) error {
	if s.recovery == nil {
		return errors.New(errors.ErrCodeInvalidRecoveryToken, "recovery is not configured")
	}
	if err := s.recovery.VerifyAndConsume(recoveryToken, subjectID); err != nil {
		slog.Info("Recovery token rejected", "subjectId", subjectID)
		return err
	}

	enrollment, err := s.getEnrollment(ctx, subjectID)
	if err != nil {
		return err
	}
	if enrollment.State == StateNotEnrolled {
		return errors.New(errors.ErrCodeNotEnrolled, "subject is not enrolled")
	}

	enrollment.State = StateDisabled
	enrollment.UpdatedAt = s.clock.Now().UTC()
	if err := s.repository.UpsertEnrollment(ctx, enrollment); err != nil {
		slog.Error("Failed to store disabled enrollment", "subjectId", subjectID, "error", err)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to store enrollment")
	}

	s.limiter.Clear(subjectID.String(), ATTEMPT_KIND_TOTP)
	s.limiter.Clear(subjectID.String(), ATTEMPT_KIND_BACKUP)
	slog.Info("2FA disabled via recovery token", "subjectId", subjectID)
	return nil
}

// ResetEnrollment deletes a disabled enrollment so the subject can enroll
// again from scratch. Only the disabled state may be reset.
func (s *TwoFaService) ResetEnrollment(ctx context.Context, subjectID uuid.UUID) error {
	enrollment, err := s.getEnrollment(ctx, subjectID)
	if err != nil {
		return err
	}
	if enrollment.State != StateDisabled {
		return errors.New(errors.ErrCodeInvalidState, fmt.Sprintf("cannot reset enrollment in state %s", enrollment.State))
	}

	if err := s.repository.DeleteEnrollment(ctx, subjectID); err != nil {
		slog.Error("Failed to delete enrollment", "subjectId", subjectID, "error", err)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete enrollment")
	}

	slog.Info("2FA enrollment reset", "subjectId", subjectID)
	return nil
}

// GetEnrollmentState reports the subject's lifecycle state. A subject with no
// record is simply not enrolled.
func (s *TwoFaService) GetEnrollmentState(ctx context.Context, subjectID uuid.UUID) (EnrollmentState, error) {
	enrollment, err := s.getEnrollment(ctx, subjectID)
	if err != nil {
		return "", err
	}
	return enrollment.State, nil
}

// getEnrollment loads the subject's record, mapping absence to a zero-value
// enrollment in the not-enrolled state.
func (s *TwoFaService) getEnrollment(ctx context.Context, subjectID uuid.UUID) (Enrollment, error) {
	enrollment, err := s.repository.GetEnrollment(ctx, subjectID)
	if err != nil {
		if stderrors.Is(err, ErrEnrollmentNotFound) || errors.IsCode(err, errors.ErrCodeNotFound) {
			return Enrollment{SubjectID: subjectID, State: StateNotEnrolled}, nil
		}
		slog.Error("Failed to load enrollment", "subjectId", subjectID, "error", err)
		return Enrollment{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to load enrollment")
	}
	return enrollment, nil
}

// checkRateLimit records the attempt and maps an exceeded window to the
// service error taxonomy, attaching the retry-after hint.
func (s *TwoFaService) checkRateLimit(subjectID uuid.UUID, attemptKind string) error {
	_, err := s.limiter.CheckAndRecord(subjectID.String(), attemptKind)
	if err == nil {
		return nil
	}

	var exceeded *ratelimit.ExceededError
	if stderrors.As(err, &exceeded) {
		slog.Warn("Rate limit exceeded", "subjectId", subjectID, "kind", attemptKind, "retryAfter", exceeded.RetryAfter)
		return errors.RateLimitExceeded(exceeded.RetryAfter.String())
	}
	return errors.Wrap(err, errors.ErrCodeInternal, "rate limit check failed")
}

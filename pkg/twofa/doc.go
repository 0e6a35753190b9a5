// Package twofa coordinates the full lifecycle of a subject's second factor:
// TOTP secret provisioning, enrollment confirmation, token and backup-code
// verification, risk-based step-up assessment, and recovery.
//
// # Overview
//
// The twofa package provides:
//   - TOTP (Time-based One-Time Password) enrollment and verification
//   - Single-use backup codes issued at enrollment confirmation
//   - Per-subject sliding-window rate limiting of failed attempts
//   - Risk-based step-up decisions (new device, unusual location/time)
//   - Recovery-token based disable and reset
//   - Pluggable persistence (PostgreSQL, file, in-memory)
//
// # Enrollment Lifecycle
//
// A subject moves through four states:
//
//	not_enrolled -> pending_confirmation -> enrolled -> disabled
//
// Provisioning a secret creates a pending enrollment; the subject proves
// possession by submitting a valid token, which activates the enrollment and
// issues backup codes. A disabled enrollment keeps its record for audit and
// must be reset before the subject can enroll again.
//
// # Basic Usage
//
//	import "github.com/tendant/simple-2fa/pkg/twofa"
//
//	// Create service
//	repo := twofa.NewInMemTwoFARepository()
//	service := twofa.NewTwoFaService(
//		repo,
//		twofa.WithIssuer("myapp"),
//		twofa.WithRiskEngine(riskEngine),
//		twofa.WithRecoveryTokenVerifier(recovery),
//	)
//
//	// Provision a secret; hand descriptor.URI to the authenticator app
//	descriptor, err := service.ProvisionSecret(ctx, subjectID, "user@example.com")
//
//	// User enters code from app to confirm setup
//	backupCodes, err := service.ConfirmEnrollment(ctx, subjectID, userEnteredCode)
//
//	// Later logins verify a fresh code
//	err = service.VerifyToken(ctx, subjectID, code)
//
//	// Or burn a backup code when the authenticator is unavailable
//	err = service.VerifyBackupCode(ctx, subjectID, "A1B2C3D4")
//
// # Rate Limiting
//
// Every verification attempt is recorded against a per-(subject, kind)
// sliding window before the submitted value is checked. TOTP, backup code and
// enrollment confirmation attempts count against separate windows; a
// successful verification clears its window.
//
// # Security Considerations
//
//  1. TOTP secrets and submitted tokens are never logged
//  2. Backup codes are shown in full exactly once, at confirmation
//  3. Code comparisons are constant-time
//  4. Recovery tokens are single-use and bound to one subject
//
// # Related Packages
//
//   - pkg/totp - secret provisioning and RFC 6238 verification
//   - pkg/backupcode - backup code generation and consumption
//   - pkg/ratelimit - sliding-window attempt limiter
//   - pkg/risk - step-up assessment engine
//   - pkg/device - client fingerprinting for risk signals
package twofa

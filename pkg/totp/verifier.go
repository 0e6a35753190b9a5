package totp

import (
	"crypto/subtle"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-2fa/pkg/clock"
)

const (
	// DefaultPeriod is the RFC 6238 time-step duration in seconds.
	DefaultPeriod = 30
	// DefaultWindow tolerates one step of clock drift on either side (±30s).
	DefaultWindow = 1
)

// Verifier checks submitted tokens against a stored base32 secret.
type Verifier struct {
	clock  clock.Clock
	period uint
	digits otp.Digits
}

type VerifierOption func(*Verifier)

// WithClock overrides the time source, used by tests to pin the step index.
func WithClock(c clock.Clock) VerifierOption {
	return func(v *Verifier) {
		v.clock = c
	}
}

// WithPeriod overrides the time-step duration in seconds.
func WithPeriod(period uint) VerifierOption {
	return func(v *Verifier) {
		v.period = period
	}
}

// NewVerifier creates a verifier with the RFC 6238 defaults: 30-second
// steps, 6-digit SHA1 codes.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		clock:  clock.NewSystemClock(),
		period: DefaultPeriod,
		digits: otp.DigitsSix,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reports whether token matches the code of any time step within
// ±window steps of the current one. window=1 tolerates up to one step of
// clock drift; window=0 accepts only the current step.
//
// Malformed secrets and non-numeric or wrong-length tokens return false,
// never an error: a garbled submission is just a failed verification.
// Candidate comparison is constant-time.
func (v *Verifier) Verify(secret, token string, window uint) bool {
	if !v.validTokenShape(token) {
		return false
	}

	now := v.clock.Now()
	step := time.Duration(v.period) * time.Second
	matched := false
	for offset := -int(window); offset <= int(window); offset++ {
		candidate, err := totp.GenerateCodeCustom(secret, now.Add(time.Duration(offset)*step), totp.ValidateOpts{
			Period:    v.period,
			Skew:      0,
			Digits:    v.digits,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			// Bad base32 secret; no step can match.
			return false
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			matched = true
		}
	}
	return matched
}

// validTokenShape requires exactly digits.Length() ASCII digits, so codes
// keep their leading zeros.
func (v *Verifier) validTokenShape(token string) bool {
	if len(token) != v.digits.Length() {
		return false
	}
	for _, c := range token {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

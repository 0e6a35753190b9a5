package twofa

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-2fa/pkg/clock"
	"github.com/tendant/simple-2fa/pkg/errors"
)

// RecoveryTokenVerifier validates the out-of-band administrative tokens that
// authorize disabling a subject's 2FA. Tokens are HS256 JWTs carrying the
// subject in "sub" and a unique "jti"; each jti is honored once.
type RecoveryTokenVerifier struct {
	secret   []byte
	clock    clock.Clock
	usedJTIs map[string]bool
	mutex    sync.Mutex
}

// NewRecoveryTokenVerifier creates a verifier with the given signing secret
func NewRecoveryTokenVerifier(secret []byte, clk clock.Clock) *RecoveryTokenVerifier {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &RecoveryTokenVerifier{
		secret:   secret,
		clock:    clk,
		usedJTIs: make(map[string]bool),
	}
}

// VerifyAndConsume checks the recovery token's signature, expiry and subject
// binding, then marks its jti as used. A token that fails any check leaves no
// trace; a valid token can only succeed once.
func (v *RecoveryTokenVerifier) VerifyAndConsume(tokenStr string, subjectID uuid.UUID) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil || !token.Valid {
		return errors.New(errors.ErrCodeInvalidRecoveryToken, "invalid recovery token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New(errors.ErrCodeInvalidRecoveryToken, "invalid recovery token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub != subjectID.String() {
		return errors.New(errors.ErrCodeInvalidRecoveryToken, "recovery token not issued for subject")
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return errors.New(errors.ErrCodeInvalidRecoveryToken, "recovery token missing jti")
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()
	if v.usedJTIs[jti] {
		return errors.New(errors.ErrCodeRecoveryTokenUsed, "recovery token already used")
	}
	v.usedJTIs[jti] = true

	return nil
}

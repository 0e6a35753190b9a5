package backupcode

import (
	"crypto/rand"
	"crypto/subtle"
	"log/slog"
	"math/big"
	"regexp"
	"time"

	"github.com/tendant/simple-2fa/pkg/errors"
)

const (
	// DefaultCount is the number of codes issued per set.
	DefaultCount = 8
	// CodeLength is the length of each code.
	CodeLength = 8
)

// alphabet is the uniform draw space for each code character. 36^8 makes
// collisions across sets negligible; sets are not deduplicated against
// prior sets.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// Code is a single-use recovery code. Once Used is set it is never
// revalidated.
type Code struct {
	Value  string     `json:"value"`
	Used   bool       `json:"used"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// Generate draws count codes uniformly from [A-Z0-9]{8}. The set is
// generated atomically: an entropy failure discards all codes and surfaces
// GENERATION_FAILED.
func Generate(count int) ([]Code, error) {
	if count < 1 {
		return nil, errors.InvalidInput("count", "must be at least 1")
	}

	max := big.NewInt(int64(len(alphabet)))
	codes := make([]Code, count)
	for i := range codes {
		buf := make([]byte, CodeLength)
		for j := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				slog.Error("Failed to generate backup code", "error", err)
				return nil, errors.Wrap(err, errors.ErrCodeGenerationFailed, "failed to generate backup code")
			}
			buf[j] = alphabet[n.Int64()]
		}
		codes[i] = Code{Value: string(buf)}
	}
	return codes, nil
}

// ValidateFormat checks the code shape only; it never consults storage.
func ValidateFormat(code string) bool {
	return codePattern.MatchString(code)
}

// Consume marks the matching unused code as spent, stamping UsedAt with now.
// It fails with CODE_ALREADY_USED when the submitted code exists but was
// spent earlier, and INVALID_CODE when no code matches. Consuming the same
// code twice always fails the second time.
//
// Matching is constant-time per candidate to avoid leaking prefix matches.
func Consume(codes []Code, submitted string, now time.Time) error {
	var spent bool
	for i := range codes {
		if subtle.ConstantTimeCompare([]byte(codes[i].Value), []byte(submitted)) != 1 {
			continue
		}
		if codes[i].Used {
			spent = true
			continue
		}
		usedAt := now
		codes[i].Used = true
		codes[i].UsedAt = &usedAt
		return nil
	}

	if spent {
		return errors.New(errors.ErrCodeCodeAlreadyUsed, "backup code already used")
	}
	return errors.New(errors.ErrCodeInvalidCode, "backup code not found")
}

package totp

import (
	"log/slog"

	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-2fa/pkg/errors"
)

// SecretSize is the raw entropy of a provisioned secret in bytes (160 bits).
const SecretSize = 20

// ProvisioningDescriptor carries everything a collaborator needs to hand a
// new secret to an authenticator app. The base32 secret must only travel to
// secure storage and the otpauth URI; it is never logged.
type ProvisioningDescriptor struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// Provision generates a fresh TOTP secret for the given account/issuer pair
// and builds its otpauth:// provisioning URI.
//
// An entropy-source failure is fatal and surfaced as GENERATION_FAILED; it is
// never retried here. Persistence of the secret is the caller's
// responsibility.
func Provision(accountLabel, issuerLabel string) (ProvisioningDescriptor, error) {
	if accountLabel == "" {
		return ProvisioningDescriptor{}, errors.InvalidInput("account label", "must not be empty")
	}
	if issuerLabel == "" {
		return ProvisioningDescriptor{}, errors.InvalidInput("issuer label", "must not be empty")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuerLabel,
		AccountName: accountLabel,
		SecretSize:  SecretSize,
		Period:      DefaultPeriod,
	})
	if err != nil {
		slog.Error("Failed to generate totp secret", "issuer", issuerLabel, "error", err)
		return ProvisioningDescriptor{}, errors.Wrap(err, errors.ErrCodeGenerationFailed, "failed to generate totp secret")
	}

	slog.Info("Generated new totp secret", "issuer", issuerLabel, "account", accountLabel)
	return ProvisioningDescriptor{
		Secret: key.Secret(),
		URI:    key.URL(),
	}, nil
}

package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// FingerprintData contains the components used to generate a client
// fingerprint for risk assessment.
type FingerprintData struct {
	UserAgent     string
	AcceptHeaders string
	Timezone      string
}

// GenerateFingerprint creates a stable identifier for a client as a SHA-256
// hash of the combined data. It identifies a browser/device combination, not
// a person; it feeds the risk engine's known-device check.
func GenerateFingerprint(data FingerprintData) string {
	combined := fmt.Sprintf("%s|%s|%s",
		data.UserAgent,
		data.AcceptHeaders,
		data.Timezone,
	)

	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// ExtractFingerprintDataFromRequest extracts fingerprint data from an HTTP request
func ExtractFingerprintDataFromRequest(r *http.Request) FingerprintData {
	acceptHeaders := r.Header.Get("Accept") + "|" +
		r.Header.Get("Accept-Language") + "|" +
		r.Header.Get("Accept-Encoding")

	return FingerprintData{
		UserAgent:     r.UserAgent(),
		AcceptHeaders: acceptHeaders,
		Timezone:      r.Header.Get("Timezone"),
	}
}

// GetRequestFingerprint extracts data from a request and generates a
// fingerprint in one step.
func GetRequestFingerprint(r *http.Request) string {
	return GenerateFingerprint(ExtractFingerprintDataFromRequest(r))
}

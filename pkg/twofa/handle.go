package twofa

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-2fa/pkg/backupcode"
	"github.com/tendant/simple-2fa/pkg/device"
	"github.com/tendant/simple-2fa/pkg/errors"
	"github.com/tendant/simple-2fa/pkg/risk"
	"github.com/tendant/simple-2fa/pkg/totp"
)

// Handler handles HTTP requests for the 2FA lifecycle
type Handler struct {
	service TwoFactorService
}

// NewHandler creates a new 2FA handler
func NewHandler(service TwoFactorService) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the 2FA routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/2fa", func(r chi.Router) {
		r.Post("/enroll", h.Enroll)
		r.Post("/enroll/confirm", h.ConfirmEnrollment)
		r.Post("/verify", h.VerifyToken)
		r.Post("/backup/verify", h.VerifyBackupCode)
		r.Post("/risk", h.AssessRisk)
		r.Post("/disable", h.Disable)
		r.Post("/reset", h.Reset)
		r.Get("/{subjectId}/state", h.GetState)
	})
}

// EnrollRequest represents the request body for provisioning a secret
type EnrollRequest struct {
	SubjectID    string `json:"subject_id"`
	AccountLabel string `json:"account_label"`
}

// EnrollResponse carries the provisioning descriptor back to the caller.
// This response is the only place the secret leaves the service.
type EnrollResponse struct {
	Status       string                      `json:"status"`
	Provisioning totp.ProvisioningDescriptor `json:"provisioning"`
}

// ConfirmRequest represents the request body for confirming an enrollment
type ConfirmRequest struct {
	SubjectID string `json:"subject_id"`
	Token     string `json:"token"`
}

// ConfirmResponse returns the freshly issued backup codes. They are shown
// once; afterwards only their used/unused status is observable.
type ConfirmResponse struct {
	Status      string   `json:"status"`
	BackupCodes []string `json:"backup_codes"`
}

// VerifyRequest represents the request body for verifying a TOTP token
type VerifyRequest struct {
	SubjectID string `json:"subject_id"`
	Token     string `json:"token"`
}

// BackupVerifyRequest represents the request body for consuming a backup code
type BackupVerifyRequest struct {
	SubjectID string `json:"subject_id"`
	Code      string `json:"code"`
}

// DisableRequest represents the request body for disabling 2FA
type DisableRequest struct {
	SubjectID     string `json:"subject_id"`
	RecoveryToken string `json:"recovery_token"`
}

// ResetRequest represents the request body for resetting a disabled enrollment
type ResetRequest struct {
	SubjectID string `json:"subject_id"`
}

// RiskRequest represents the request body for a risk assessment. Fingerprint
// and origin are derived from the request when not supplied.
type RiskRequest struct {
	SubjectID         string `json:"subject_id"`
	ClientFingerprint string `json:"client_fingerprint,omitempty"`
	NetworkOrigin     string `json:"network_origin,omitempty"`
}

// RiskResponse represents the response body for a risk assessment
type RiskResponse struct {
	Status     string          `json:"status"`
	Assessment risk.Assessment `json:"assessment"`
}

// StateResponse represents the response body for an enrollment state lookup
type StateResponse struct {
	Status string          `json:"status"`
	State  EnrollmentState `json:"state"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Enroll handles provisioning a new secret for a subject
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		renderError(w, r, errors.InvalidInput("subject_id", "must be a UUID"))
		return
	}

	descriptor, err := h.service.ProvisionSecret(r.Context(), subjectID, req.AccountLabel)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, EnrollResponse{
		Status:       "success",
		Provisioning: descriptor,
	})
}

// ConfirmEnrollment handles activating a pending enrollment
func (h *Handler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		renderError(w, r, errors.InvalidInput("subject_id", "must be a UUID"))
		return
	}

	codes, err := h.service.ConfirmEnrollment(r.Context(), subjectID, req.Token)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ConfirmResponse{
		Status:      "success",
		BackupCodes: backupCodeValues(codes),
	})
}

// VerifyToken handles TOTP verification for an enrolled subject
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		renderError(w, r, errors.InvalidInput("subject_id", "must be a UUID"))
		return
	}

	if err := h.service.VerifyToken(r.Context(), subjectID, req.Token); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{
		Status:  "success",
		Message: "Token verified",
	})
}

// VerifyBackupCode handles consuming a single-use backup code
func (h *Handler) VerifyBackupCode(w http.ResponseWriter, r *http.Request) {
	var req BackupVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		renderError(w, r, errors.InvalidInput("subject_id", "must be a UUID"))
		return
	}

	if err := h.service.VerifyBackupCode(r.Context(), subjectID, req.Code); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{
		Status:  "success",
		Message: "Backup code accepted",
	})
}

// AssessRisk handles computing the step-up decision for an attempt
func (h *Handler) AssessRisk(w http.ResponseWriter, r *http.Request) {
	var req RiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		renderError(w, r, errors.InvalidInput("subject_id", "must be a UUID"))
		return
	}

	fingerprint := req.ClientFingerprint
	if fingerprint == "" {
		fingerprint = device.GetRequestFingerprint(r)
	}
	origin := req.NetworkOrigin
	if origin == "" {
		origin = clientIP(r)
	}

	assessment, err := h.service.AssessRisk(r.Context(), subjectID, risk.RequestContext{
		ClientFingerprint: fingerprint,
		NetworkOrigin:     origin,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RiskResponse{
		Status:     "success",
		Assessment: assessment,
	})
}

// Disable handles turning off 2FA with a recovery token
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	var req DisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		renderError(w, r, errors.InvalidInput("subject_id", "must be a UUID"))
		return
	}

	if err := h.service.Disable(r.Context(), subjectID, req.RecoveryToken); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{
		Status:  "success",
		Message: "Two-factor authentication disabled",
	})
}

// Reset handles deleting a disabled enrollment
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		renderError(w, r, errors.InvalidInput("subject_id", "must be a UUID"))
		return
	}

	if err := h.service.ResetEnrollment(r.Context(), subjectID); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{
		Status:  "success",
		Message: "Enrollment reset",
	})
}

// GetState handles looking up a subject's enrollment state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	subjectID, err := uuid.Parse(chi.URLParam(r, "subjectId"))
	if err != nil {
		renderError(w, r, errors.InvalidInput("subjectId", "must be a UUID"))
		return
	}

	state, err := h.service.GetEnrollmentState(r.Context(), subjectID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, StateResponse{
		Status: "success",
		State:  state,
	})
}

// renderError maps a service error to its HTTP status and JSON body
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	message := "internal error"
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		message = structured.Message
	}

	render.Status(r, errors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Code:    string(code),
		Message: message,
		Details: errors.GetDetails(err),
	})
}

func backupCodeValues(codes []backupcode.Code) []string {
	values := make([]string, 0, len(codes))
	for _, c := range codes {
		values = append(values, c.Value)
	}
	return values
}

// clientIP extracts the client IP, preferring proxy headers
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package risk

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Default hour-of-day bounds outside which an attempt is flagged as unusual.
const (
	quietHourStart = 6
	quietHourEnd   = 22
)

// SubjectAttributes are the risk-relevant facts a collaborator knows about a
// subject. The engine never owns or caches a user record.
type SubjectAttributes struct {
	Role           string
	TwoFactorOptIn bool
	KnownDevices   []string
	KnownOrigins   []string
}

// AttributeSource loads subject attributes from the collaborator that owns
// them.
type AttributeSource interface {
	GetSubjectAttributes(ctx context.Context, subjectID uuid.UUID) (SubjectAttributes, error)
}

// RequestContext carries the request-side signals for one authentication
// attempt.
type RequestContext struct {
	ClientFingerprint string    // user-agent fingerprint or device identifier
	NetworkOrigin     string    // e.g. client IP
	At                time.Time // local time of the attempt
}

// Assessment is computed fresh per attempt and never persisted or cached.
type Assessment struct {
	NewDevice       bool `json:"new_device"`
	UnusualLocation bool `json:"unusual_location"`
	UnusualTime     bool `json:"unusual_time"`
	RequiresStepUp  bool `json:"requires_step_up"`
}

// Engine decides whether an authentication attempt requires step-up.
type Engine struct {
	source        AttributeSource
	elevatedRoles map[string]bool
}

type EngineOption func(*Engine)

// WithElevatedRoles replaces the set of roles that always force step-up.
func WithElevatedRoles(roles ...string) EngineOption {
	return func(e *Engine) {
		e.elevatedRoles = make(map[string]bool, len(roles))
		for _, r := range roles {
			e.elevatedRoles[r] = true
		}
	}
}

// NewEngine creates a risk engine backed by the given attribute source.
// By default only the "admin" role is treated as elevated.
func NewEngine(source AttributeSource, opts ...EngineOption) *Engine {
	e := &Engine{
		source:        source,
		elevatedRoles: map[string]bool{"admin": true},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess computes the risk factors for one attempt and combines them into
// the step-up decision:
//
//   - an elevated role always forces step-up, whatever the factors say
//   - a subject who has not opted in and holds no elevated role never
//     gets step-up
//   - otherwise any of new-device / unusual-location forces step-up;
//     unusual-time is informational only
//
// A failure while loading attributes fails closed: step-up is required.
func (e *Engine) Assess(ctx context.Context, subjectID uuid.UUID, rc RequestContext) Assessment {
	attrs, err := e.source.GetSubjectAttributes(ctx, subjectID)
	if err != nil {
		slog.Warn("Failed to load subject attributes, failing closed", "subjectId", subjectID, "error", err)
		return Assessment{RequiresStepUp: true}
	}

	hour := rc.At.Hour()
	assessment := Assessment{
		NewDevice:       !contains(attrs.KnownDevices, rc.ClientFingerprint),
		UnusualLocation: !contains(attrs.KnownOrigins, rc.NetworkOrigin),
		UnusualTime:     hour < quietHourStart || hour > quietHourEnd,
	}

	switch {
	case e.elevatedRoles[attrs.Role]:
		assessment.RequiresStepUp = true
	case !attrs.TwoFactorOptIn:
		assessment.RequiresStepUp = false
	default:
		assessment.RequiresStepUp = assessment.NewDevice || assessment.UnusualLocation
	}

	return assessment
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

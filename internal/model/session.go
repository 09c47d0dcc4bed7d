package model

import "time"

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// Bounds for session configuration. Values outside these ranges are rejected
// at open time.
const (
	MinRotationIntervalSec     = 10
	MaxRotationIntervalSec     = 120
	DefaultRotationIntervalSec = 30

	MinDurationMin = 5
	MaxDurationMin = 180
)

// SessionConfig is the instructor-chosen configuration for one attendance
// window. LateModeEnabled is the only field that may change after the
// session closes.
type SessionConfig struct {
	RotationIntervalSec int  `json:"rotationIntervalSec" bson:"rotationIntervalSec"`
	DurationMin         int  `json:"durationMin" bson:"durationMin"`
	StrictDeviceBinding bool `json:"strictDeviceBinding" bson:"strictDeviceBinding"`
	LateModeEnabled     bool `json:"lateModeEnabled" bson:"lateModeEnabled"`
}

// Session is a single attendance window for one class meeting. The token
// fields are written only by the rotator and are never serialized into API
// responses; the token endpoint returns a TokenSnapshot instead.
type Session struct {
	ID        string        `json:"id" bson:"_id"`
	Code      string        `json:"code" bson:"code"`
	ClassID   string        `json:"classId" bson:"classId"`
	CreatedBy string        `json:"createdBy" bson:"createdBy"`
	Status    SessionStatus `json:"status" bson:"status"`
	Config    SessionConfig `json:"config" bson:"config"`

	CurrentToken         string    `json:"-" bson:"currentToken"`
	PreviousToken        string    `json:"-" bson:"previousToken"`
	CurrentTokenIssuedAt time.Time `json:"-" bson:"currentTokenIssuedAt"`

	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty" bson:"closedAt,omitempty"`
}

// RotationInterval returns the configured rotation period.
func (s *Session) RotationInterval() time.Duration {
	return time.Duration(s.Config.RotationIntervalSec) * time.Second
}

// AcceptsToken reports whether the presented token falls inside the
// two-generation acceptance window.
func (s *Session) AcceptsToken(presented string) bool {
	if presented == "" {
		return false
	}
	return presented == s.CurrentToken || (s.PreviousToken != "" && presented == s.PreviousToken)
}

// TokenSnapshot is the display-facing view of the live rotating secret.
type TokenSnapshot struct {
	Token        string    `json:"token"`
	FallbackCode string    `json:"fallbackCode"`
	IssuedAt     time.Time `json:"issuedAt"`
}

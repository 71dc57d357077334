package activation

import (
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the concrete Session produced from parsed claims.
type SessionObject struct {
	UserID   string     `json:"user_id,omitempty"`
	Username string     `json:"username,omitempty"`
	Audience []string   `json:"audience,omitempty"`
	Issuer   string     `json:"issuer,omitempty"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func sessionFromClaims(claims *SessionClaims) *SessionObject {
	session := &SessionObject{
		UserID:   claims.UID,
		Username: claims.Username,
		Audience: claims.Audience,
		Issuer:   claims.Issuer,
	}

	if session.UserID == "" {
		session.UserID = claims.Subject
	}

	if claims.IssuedAt != nil {
		issuedAt := claims.IssuedAt.Time
		session.IssuedAt = &issuedAt
	}

	return session
}

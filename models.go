package activation

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. The activation flow only ever mutates the
// Active flag and the password credential, everything else belongs to
// the surrounding identity system.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"password_hash,omitempty"`
	Active        bool       `bun:"is_active" json:"is_active,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasUsablePassword reports whether the user has a credential that can
// ever match a login attempt. Pending accounts carry the unusable
// sentinel until activation sets a real hash.
func (u *User) HasUsablePassword() bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	return !isUnusablePassword(u.PasswordHash)
}

// ActivationToken is a pending activation. At most one live token may
// exist per user, enforced by the unique user_id column; a successful
// consume deletes the row.
type ActivationToken struct {
	bun.BaseModel `bun:"table:activation_tokens,alias:act"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull,unique" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token fell outside the activation window.
// The comparison is date based: a token created exactly windowDays ago
// is already expired.
func (t *ActivationToken) Expired(windowDays int) bool {
	if t == nil || t.CreatedAt == nil {
		return true
	}
	return ActivationWindowElapsed(*t.CreatedAt, windowDays)
}

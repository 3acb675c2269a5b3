package models

import (
	"time"

	"github.com/google/uuid"
)

// MFAChallenge bridges a password-verified login and the pending TOTP check.
// The client holds an opaque session id; only its hash is stored. A wrong
// code leaves the challenge open for retry; a correct code consumes it
// exactly once.
type MFAChallenge struct {
	BaseModel
	UserID     uuid.UUID  `json:"-" gorm:"type:uuid;not null;index"`
	TokenHash  string     `json:"-" gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt  time.Time  `json:"-" gorm:"not null;index"`
	ConsumedAt *time.Time `json:"-"`
	User       User       `json:"-" gorm:"foreignKey:UserID"`
}

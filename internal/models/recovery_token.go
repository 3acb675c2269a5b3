package models

import (
	"time"

	"github.com/google/uuid"
)

type RecoveryPurpose string

const (
	RecoveryVerifyEmail   RecoveryPurpose = "verify_email"
	RecoveryResetPassword RecoveryPurpose = "reset_password"
)

// RecoveryToken backs the out-of-band account flows (email verification and
// password reset). The raw token travels only in the emailed link; the row
// keeps its hash. Expired tokens are rejected without being consumed.
type RecoveryToken struct {
	BaseModel
	UserID    uuid.UUID       `json:"-" gorm:"type:uuid;not null;index"`
	TokenHash string          `json:"-" gorm:"type:text;not null;uniqueIndex"`
	Purpose   RecoveryPurpose `json:"-" gorm:"type:varchar(20);not null"`
	ExpiresAt time.Time       `json:"-" gorm:"not null;index"`
	UsedAt    *time.Time      `json:"-"`
	User      User            `json:"-" gorm:"foreignKey:UserID"`
}

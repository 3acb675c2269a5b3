package models

import "time"

type User struct {
	BaseModel
	Email        string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"type:text;not null"`
	FirstName    string `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName     string `json:"lastName" gorm:"type:varchar(100);not null"`

	// MFASecret is stored encrypted at rest. MFAEnabled may only be true
	// while a secret is present: the secret is written by the setup step and
	// the flag flips only after a correct code proves possession.
	MFASecret  string `json:"-" gorm:"type:text"`
	MFAEnabled bool   `json:"mfaEnabled" gorm:"not null;default:false"`

	EmailVerifiedAt *time.Time     `json:"emailVerifiedAt,omitempty"`
	RefreshTokens   []RefreshToken `json:"-" gorm:"foreignKey:UserID"`
}

// PublicUser is the view of a user returned by the API. It never carries the
// password hash or the MFA secret.
type PublicUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	MFAEnabled    bool   `json:"mfaEnabled"`
	EmailVerified bool   `json:"emailVerified"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID.String(),
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		MFAEnabled:    u.MFAEnabled,
		EmailVerified: u.EmailVerifiedAt != nil,
	}
}

package models

import "github.com/google/uuid"

// RefreshToken is the persisted side of an issued refresh token. The row ID
// equals the tokenId claim embedded in the signed token, so a presented
// token locates exactly one record regardless of how many concurrent
// sessions the user holds. Only a SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	BaseModel
	UserID    uuid.UUID `json:"userID" gorm:"type:uuid;not null;index:idx_refresh_tokens_user_revoked"`
	TokenHash string    `json:"-" gorm:"type:text;not null;uniqueIndex"`
	Revoked   bool      `json:"revoked" gorm:"not null;default:false;index:idx_refresh_tokens_user_revoked"`
	User      User      `json:"-" gorm:"foreignKey:UserID"`
}

package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/config"
	"github.com/fitlog/backend/internal/models"
	"github.com/fitlog/backend/internal/notify"
	"github.com/fitlog/backend/internal/token"
	"github.com/fitlog/backend/internal/totp"
	"github.com/fitlog/backend/pkg/logger"
	"github.com/fitlog/backend/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// SessionService owns every authentication state transition: signup, login,
// the MFA challenge bridge, refresh rotation, logout and the out-of-band
// recovery flows. Handlers stay a thin mapping layer on top of it.
type SessionService struct {
	DB       *gorm.DB
	Tokens   *token.Issuer
	TOTP     *totp.Engine
	Notifier notify.Notifier
	Recovery config.RecoveryConfig
	App      config.AppConfig
}

func NewSessionService(
	db *gorm.DB,
	tokens *token.Issuer,
	totpEngine *totp.Engine,
	notifier notify.Notifier,
	recovery config.RecoveryConfig,
	app config.AppConfig,
) *SessionService {
	return &SessionService{
		DB:       db,
		Tokens:   tokens,
		TOTP:     totpEngine,
		Notifier: notifier,
		Recovery: recovery,
		App:      app,
	}
}

type SignupParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthResult struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	User         models.PublicUser `json:"user"`
}

// LoginResult is either a full AuthResult or a pending MFA challenge, never
// both. An MFA-enabled account gets no tokens from a password alone.
type LoginResult struct {
	Auth          *AuthResult
	MFARequired   bool
	TempSessionID string
}

type MFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

func (s *SessionService) Signup(ctx context.Context, params SignupParams) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email address")
	}
	if len(params.Password) < minPasswordLength {
		return nil, apperr.Validation("password must be at least 8 characters")
	}
	firstName := strings.TrimSpace(params.FirstName)
	lastName := strings.TrimSpace(params.LastName)
	if firstName == "" || lastName == "" {
		return nil, apperr.Validation("firstName and lastName are required")
	}

	hash, err := utils.HashPassword(params.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
	}
	// The unique index on email is the authority on duplicates, so two
	// concurrent signups for the same address cannot both get through.
	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Internal(err)
	}

	return s.issueTokens(ctx, &user)
}

func (s *SessionService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if !utils.CheckPassword(password, user.PasswordHash) {
		return nil, apperr.Authentication()
	}

	if user.MFAEnabled {
		tempSessionID, err := s.createMFAChallenge(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{MFARequired: true, TempSessionID: tempSessionID}, nil
	}

	auth, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Auth: auth}, nil
}

// VerifyMFAChallenge completes an MFA login. A wrong code leaves the
// challenge open for retry until expiry; a correct one consumes it exactly
// once before any tokens are issued.
func (s *SessionService) VerifyMFAChallenge(ctx context.Context, tempSessionID, code string) (*AuthResult, error) {
	var challenge models.MFAChallenge
	err := s.DB.WithContext(ctx).
		Where("token_hash = ? AND consumed_at IS NULL AND expires_at > ?", token.HashToken(tempSessionID), time.Now().UTC()).
		First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Authentication()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user, err := s.userByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled || user.MFASecret == "" {
		return nil, apperr.Authentication()
	}

	if !s.TOTP.Validate(code, utils.DecryptOrPlaintext(user.MFASecret)) {
		return nil, apperr.Authentication()
	}

	// Conditional consumption: of two concurrent verifications with the same
	// session id, only the one that flips consumed_at proceeds.
	result := s.DB.WithContext(ctx).
		Model(&models.MFAChallenge{}).
		Where("id = ? AND consumed_at IS NULL", challenge.ID).
		Update("consumed_at", time.Now().UTC())
	if result.Error != nil {
		return nil, apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.Authentication()
	}

	return s.issueTokens(ctx, user)
}

func (s *SessionService) CreateMFASecret(ctx context.Context, userID uuid.UUID) (*MFASetup, error) {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, apperr.Conflict("mfa is already enabled")
	}

	secret, err := s.TOTP.GenerateSecret(user.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	stored, err := utils.EncryptAESGCM(secret.Secret)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// Repeating setup before activation simply replaces the pending secret.
	if err := s.DB.WithContext(ctx).Model(user).Update("mfa_secret", stored).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	return &MFASetup{Secret: secret.Secret, OTPAuthURL: secret.OTPAuthURL}, nil
}

// EnableMFA activates the pending secret after the caller proves possession
// with a current code. Until then a mistyped secret cannot lock anyone out.
func (s *SessionService) EnableMFA(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return apperr.Conflict("mfa is already enabled")
	}
	if user.MFASecret == "" {
		return apperr.Validation("mfa setup has not been started")
	}

	if !s.TOTP.Validate(code, utils.DecryptOrPlaintext(user.MFASecret)) {
		return apperr.Authentication()
	}

	if err := s.DB.WithContext(ctx).Model(user).Update("mfa_enabled", true).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *SessionService) DisableMFA(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return apperr.Validation("mfa is not enabled")
	}

	if !utils.CheckPassword(password, user.PasswordHash) {
		return apperr.Authentication()
	}

	updates := map[string]interface{}{
		"mfa_enabled": false,
		"mfa_secret":  "",
	}
	if err := s.DB.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Refresh rotates a refresh token: the presented token is located by the
// tokenId embedded in its signed payload, revoked with a conditional update
// and replaced by a brand-new pair. Each token refreshes successfully at
// most once; replay of a rotated token fails.
func (s *SessionService) Refresh(ctx context.Context, rawRefreshToken string) (*AuthResult, error) {
	claims, err := s.Tokens.ParseRefresh(rawRefreshToken)
	if err != nil {
		return nil, apperr.Authentication()
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Authentication()
	}

	var record models.RefreshToken
	err = s.DB.WithContext(ctx).First(&record, "id = ?", claims.TokenID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Authentication()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if record.UserID != userID || record.TokenHash != token.HashToken(rawRefreshToken) {
		return nil, apperr.Authentication()
	}
	if record.Revoked {
		logger.Warn("refresh_token_reuse", map[string]interface{}{
			"user_id":  userID.String(),
			"token_id": record.ID.String(),
		})
		return nil, apperr.Authentication()
	}

	// Conditional revocation: two concurrent refreshes with the same token
	// race on this update and at most one sees RowsAffected = 1.
	result := s.DB.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = ?", record.ID, false).
		Update("revoked", true)
	if result.Error != nil {
		return nil, apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.Authentication()
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes the matching refresh token if one exists. It is idempotent
// and never reveals whether the presented token was valid.
func (s *SessionService) Logout(ctx context.Context, rawRefreshToken string) {
	claims, err := s.Tokens.ParseRefresh(rawRefreshToken)
	if err != nil {
		return
	}

	s.DB.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("id = ? AND token_hash = ? AND revoked = ?", claims.TokenID, token.HashToken(rawRefreshToken), false).
		Update("revoked", true)
}

func (s *SessionService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperr.Validation("password must be at least 8 characters")
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(currentPassword, user.PasswordHash) {
		return apperr.Authentication()
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.DB.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return apperr.Internal(err)
	}

	return s.revokeAllRefreshTokens(ctx, userID)
}

func (s *SessionService) RequestEmailVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerifiedAt != nil {
		return apperr.Validation("email is already verified")
	}

	rawToken, err := s.createRecoveryToken(ctx, user.ID, models.RecoveryVerifyEmail, s.Recovery.EmailVerifyTTL)
	if err != nil {
		return err
	}

	s.dispatch(user.Email, "Verify your email", fmt.Sprintf("%s?token=%s", s.App.EmailVerifyURL, rawToken))
	return nil
}

func (s *SessionService) VerifyEmailToken(ctx context.Context, rawToken string) error {
	record, err := s.consumeRecoveryToken(ctx, rawToken, models.RecoveryVerifyEmail)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", record.UserID).
		Update("email_verified_at", time.Now().UTC()).Error
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RequestPasswordReset returns success whether or not the email is
// registered, so the endpoint cannot be used to enumerate accounts.
func (s *SessionService) RequestPasswordReset(ctx context.Context, email string) error {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Internal(err)
	}

	// A fresh request supersedes any previously issued, still-unused link.
	err = s.DB.WithContext(ctx).
		Model(&models.RecoveryToken{}).
		Where("user_id = ? AND purpose = ? AND used_at IS NULL", user.ID, models.RecoveryResetPassword).
		Update("expires_at", time.Now().UTC()).Error
	if err != nil {
		return apperr.Internal(err)
	}

	rawToken, err := s.createRecoveryToken(ctx, user.ID, models.RecoveryResetPassword, s.Recovery.PasswordResetTTL)
	if err != nil {
		return err
	}

	s.dispatch(user.Email, "Reset your password", fmt.Sprintf("%s?token=%s", s.App.PasswordResetURL, rawToken))
	return nil
}

// ConfirmPasswordReset replaces the password and closes every open session:
// refresh tokens issued before the reset must stop working.
func (s *SessionService) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperr.Validation("password must be at least 8 characters")
	}

	record, err := s.consumeRecoveryToken(ctx, rawToken, models.RecoveryResetPassword)
	if err != nil {
		// The reset endpoint reports unknown tokens as a plain validation
		// failure rather than a lookup miss.
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return apperr.Validation("invalid token")
		}
		return err
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	err = s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", record.UserID).
		Update("password_hash", hash).Error
	if err != nil {
		return apperr.Internal(err)
	}

	return s.revokeAllRefreshTokens(ctx, record.UserID)
}

func (s *SessionService) issueTokens(ctx context.Context, user *models.User) (*AuthResult, error) {
	pair, err := s.Tokens.Issue(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	record := models.RefreshToken{
		BaseModel: models.BaseModel{ID: pair.RefreshTokenID},
		UserID:    user.ID,
		TokenHash: pair.RefreshTokenHash,
	}
	if err := s.DB.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	return &AuthResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user.Public(),
	}, nil
}

func (s *SessionService) createMFAChallenge(ctx context.Context, userID uuid.UUID) (string, error) {
	raw, err := generateOpaqueToken()
	if err != nil {
		return "", apperr.Internal(err)
	}

	challenge := models.MFAChallenge{
		UserID:    userID,
		TokenHash: token.HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(s.Recovery.MFAChallengeTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&challenge).Error; err != nil {
		return "", apperr.Internal(err)
	}

	return raw, nil
}

func (s *SessionService) createRecoveryToken(ctx context.Context, userID uuid.UUID, purpose models.RecoveryPurpose, ttl time.Duration) (string, error) {
	raw, err := generateOpaqueToken()
	if err != nil {
		return "", apperr.Internal(err)
	}

	record := models.RecoveryToken{
		UserID:    userID,
		TokenHash: token.HashToken(raw),
		Purpose:   purpose,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := s.DB.WithContext(ctx).Create(&record).Error; err != nil {
		return "", apperr.Internal(err)
	}

	return raw, nil
}

func (s *SessionService) consumeRecoveryToken(ctx context.Context, rawToken string, purpose models.RecoveryPurpose) (*models.RecoveryToken, error) {
	var record models.RecoveryToken
	err := s.DB.WithContext(ctx).
		Where("token_hash = ? AND purpose = ?", token.HashToken(rawToken), purpose).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("invalid token")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if record.UsedAt != nil {
		return nil, apperr.Validation("token has already been used")
	}
	if time.Now().UTC().After(record.ExpiresAt) {
		// Expired tokens are rejected without being consumed.
		return nil, apperr.Validation("token has expired")
	}

	result := s.DB.WithContext(ctx).
		Model(&models.RecoveryToken{}).
		Where("id = ? AND used_at IS NULL", record.ID).
		Update("used_at", time.Now().UTC())
	if result.Error != nil {
		return nil, apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.Validation("token has already been used")
	}

	return &record, nil
}

func (s *SessionService) revokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	err := s.DB.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// dispatch hands a link to the notification collaborator. Delivery problems
// are logged and swallowed so an otherwise successful request never fails
// on mail.
func (s *SessionService) dispatch(email, subject, actionURL string) {
	if err := s.Notifier.Send(email, subject, actionURL); err != nil {
		logger.Error("notification_dispatch_failed", err, map[string]interface{}{
			"subject": subject,
		})
	}
}

func (s *SessionService) userByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Authentication()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &user, nil
}

func (s *SessionService) userByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Authentication()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &user, nil
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

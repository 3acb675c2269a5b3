package token

import (
	"testing"
	"time"

	"github.com/fitlog/backend/internal/config"
	"github.com/fitlog/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testIssuer() *Issuer {
	return NewIssuer(config.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    720 * time.Hour,
	})
}

func testUser() *models.User {
	return &models.User{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Email:     "user@example.com",
	}
}

func TestIssuer_IssueAndParse(t *testing.T) {
	issuer := testIssuer()
	user := testUser()

	pair, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	access, err := issuer.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}
	if access.Subject != user.ID.String() {
		t.Errorf("access subject = %q, want %q", access.Subject, user.ID)
	}
	if access.Email != user.Email {
		t.Errorf("access email = %q, want %q", access.Email, user.Email)
	}
	if access.ExpiresAt == nil || !access.ExpiresAt.After(time.Now()) {
		t.Error("expected access token to expire in the future")
	}

	refresh, err := issuer.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh() error = %v", err)
	}
	if refresh.Subject != user.ID.String() {
		t.Errorf("refresh subject = %q, want %q", refresh.Subject, user.ID)
	}
	if refresh.TokenID != pair.RefreshTokenID {
		t.Errorf("refresh tokenId = %s, want %s", refresh.TokenID, pair.RefreshTokenID)
	}
	if pair.RefreshTokenHash != HashToken(pair.RefreshToken) {
		t.Error("expected pair hash to match HashToken of the raw refresh token")
	}
}

func TestIssuer_TokenClassesAreNotInterchangeable(t *testing.T) {
	issuer := testIssuer()

	pair, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := issuer.ParseAccess(pair.RefreshToken); err == nil {
		t.Error("expected refresh token to fail access validation")
	}
	if _, err := issuer.ParseRefresh(pair.AccessToken); err == nil {
		t.Error("expected access token to fail refresh validation")
	}
}

func TestIssuer_FreshTokenIDPerIssuance(t *testing.T) {
	issuer := testIssuer()
	user := testUser()

	first, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	second, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if first.RefreshTokenID == second.RefreshTokenID {
		t.Error("expected each issuance to mint a fresh token id")
	}
	if first.RefreshToken == second.RefreshToken {
		t.Error("expected each issuance to mint a distinct refresh token")
	}
}

func TestIssuer_ParseRejectsBadTokens(t *testing.T) {
	issuer := testIssuer()

	if _, err := issuer.ParseAccess("not-a-jwt"); err == nil {
		t.Error("expected malformed access token to fail")
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		TokenID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("refresh-secret"))
	if err != nil {
		t.Fatalf("failed signing expired token: %v", err)
	}
	if _, err := issuer.ParseRefresh(signed); err == nil {
		t.Error("expected expired refresh token to fail")
	}

	other := NewIssuer(config.TokenConfig{
		AccessSecret:  "other-access",
		RefreshSecret: "other-refresh",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	pair, err := other.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := issuer.ParseRefresh(pair.RefreshToken); err == nil {
		t.Error("expected token signed with a different secret to fail")
	}
}

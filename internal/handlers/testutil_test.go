package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fitlog/backend/internal/config"
	"github.com/fitlog/backend/internal/database"
	"github.com/fitlog/backend/internal/middleware"
	"github.com/fitlog/backend/internal/models"
	"github.com/fitlog/backend/internal/notify"
	"github.com/fitlog/backend/internal/services"
	"github.com/fitlog/backend/internal/token"
	"github.com/fitlog/backend/internal/totp"
	"github.com/fitlog/backend/pkg/logger"
	"github.com/fitlog/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	issuer   *token.Issuer
	sessions *services.SessionService
	mail     *captureNotifier
}

// captureNotifier records every dispatched notification so tests can pull
// the recovery links a real deployment would email out.
type captureNotifier struct {
	mu    sync.Mutex
	sends []capturedSend
}

type capturedSend struct {
	To        string
	Subject   string
	ActionURL string
}

var _ notify.Notifier = (*captureNotifier)(nil)

func (n *captureNotifier) Send(to, subject, actionURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, capturedSend{To: to, Subject: subject, ActionURL: actionURL})
	return nil
}

// lastSend returns the most recent notification, failing the test when
// nothing was dispatched.
func (n *captureNotifier) lastSend(t *testing.T) capturedSend {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sends) == 0 {
		t.Fatal("expected a dispatched notification")
	}
	return n.sends[len(n.sends)-1]
}

var testSetupOnce sync.Once

func testTokenConfig() config.TokenConfig {
	return config.TokenConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    720 * time.Hour,
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	issuer := token.NewIssuer(testTokenConfig())
	totpEngine := totp.NewEngine(config.TOTPConfig{Issuer: "Fitlog", Digits: 6, Period: 30, Skew: 1})
	recoveryCfg := config.RecoveryConfig{
		EmailVerifyTTL:   24 * time.Hour,
		PasswordResetTTL: time.Hour,
		MFAChallengeTTL:  5 * time.Minute,
	}
	appCfg := config.AppConfig{
		EmailVerifyURL:   "http://localhost:3001/verify-email",
		PasswordResetURL: "http://localhost:3001/reset-password",
	}

	auditService := services.NewAuditService(db)
	mail := &captureNotifier{}
	sessionService := services.NewSessionService(db, issuer, totpEngine, mail, recoveryCfg, appCfg)

	authHandler := NewAuthHandler(sessionService, auditService)
	mfaHandler := NewMFAHandler(sessionService, auditService)
	recoveryHandler := NewRecoveryHandler(sessionService, auditService)
	authMiddleware := middleware.NewAuthMiddleware(db, issuer)

	app := fiber.New(fiber.Config{})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/refresh", authHandler.Refresh)
	authRoutes.Post("/logout", authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	mfaRoutes := api.Group("/auth/mfa")
	mfaRoutes.Get("/status", authMiddleware.RequireAuth, mfaHandler.Status)
	mfaRoutes.Post("/totp/setup", authMiddleware.RequireAuth, mfaHandler.TOTPSetup)
	mfaRoutes.Post("/totp/verify-setup", authMiddleware.RequireAuth, mfaHandler.TOTPVerifySetup)
	mfaRoutes.Post("/totp/disable", authMiddleware.RequireAuth, mfaHandler.TOTPDisable)
	mfaRoutes.Post("/verify", mfaHandler.Verify)

	emailRoutes := api.Group("/auth/email")
	emailRoutes.Post("/verify/request", authMiddleware.RequireAuth, recoveryHandler.RequestEmailVerification)
	emailRoutes.Get("/verify", recoveryHandler.VerifyEmail)

	passwordRoutes := api.Group("/auth/password/reset")
	passwordRoutes.Post("/request", recoveryHandler.RequestPasswordReset)
	passwordRoutes.Post("/confirm", recoveryHandler.ConfirmPasswordReset)

	return &testEnv{app: app, db: db, issuer: issuer, sessions: sessionService, mail: mail}
}

func createTestUser(t *testing.T, env *testEnv, email, password string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	pair, err := env.issuer.Issue(user)
	if err != nil {
		t.Fatalf("failed issuing tokens: %v", err)
	}

	return user, pair.AccessToken
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataField(t *testing.T, body map[string]any) map[string]any {
	t.Helper()

	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object in response, got %+v", body)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

package totp

import (
	"time"

	"github.com/fitlog/backend/internal/config"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Engine generates shared secrets and verifies time-windowed codes. All
// settings come from the config value passed at construction; nothing is
// read from process-wide state at call time.
type Engine struct {
	cfg config.TOTPConfig
}

func NewEngine(cfg config.TOTPConfig) *Engine {
	if cfg.Issuer == "" {
		cfg.Issuer = "Fitlog"
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	return &Engine{cfg: cfg}
}

type Secret struct {
	Secret     string
	OTPAuthURL string
}

// GenerateSecret mints a fresh shared secret for the given account. The
// otpauth URL is what provisioning QR codes encode.
func (e *Engine) GenerateSecret(accountName string) (*Secret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.Issuer,
		AccountName: accountName,
		Period:      e.cfg.Period,
		Digits:      e.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	return &Secret{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// Validate checks code against secret at the current time, tolerating the
// configured number of adjacent time steps.
func (e *Engine) Validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    e.cfg.Period,
		Skew:      e.cfg.Skew,
		Digits:    e.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (e *Engine) digits() otp.Digits {
	if e.cfg.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

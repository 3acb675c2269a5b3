package utils

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password1")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "password1" {
		t.Fatal("expected hash to differ from the raw password")
	}

	if !CheckPassword("password1", hash) {
		t.Error("expected correct password to verify")
	}
	if CheckPassword("password2", hash) {
		t.Error("expected wrong password to fail verification")
	}
	if CheckPassword("password1", "not-a-bcrypt-hash") {
		t.Error("expected malformed hash to fail verification")
	}
}

func TestConfigureEncryption(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		wantKeySet bool
	}{
		{
			name:       "empty secret does not set key",
			secret:     "",
			wantKeySet: false,
		},
		{
			name:       "valid secret sets key",
			secret:     "test-secret",
			wantKeySet: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encryptionKey = nil
			ConfigureEncryption(tt.secret)

			if tt.wantKeySet && encryptionKey == nil {
				t.Error("expected encryption key to be set")
			}
			if !tt.wantKeySet && encryptionKey != nil {
				t.Error("expected encryption key to not be set")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ConfigureEncryption("test-encryption-secret")

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "totp secret shaped", content: "JBSWY3DPEHPK3PXP"},
		{name: "unicode", content: "héllo wörld"},
		{name: "binary-like", content: string([]byte{0, 1, 2, 255, 128})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := EncryptAESGCM(tt.content)
			if err != nil {
				t.Fatalf("EncryptAESGCM() error = %v", err)
			}

			decrypted, err := DecryptAESGCM(encrypted)
			if err != nil {
				t.Fatalf("DecryptAESGCM() error = %v", err)
			}

			if decrypted != tt.content {
				t.Errorf("round trip = %q, want %q", decrypted, tt.content)
			}
		})
	}
}

func TestDecryptAESGCM_Invalid(t *testing.T) {
	ConfigureEncryption("test-encryption-secret")

	if _, err := DecryptAESGCM("not-valid-base64!!!"); err == nil {
		t.Error("expected invalid base64 to fail")
	}
	if _, err := DecryptAESGCM("YWJj"); err == nil {
		t.Error("expected too-short ciphertext to fail")
	}

	encrypted, err := EncryptAESGCM("secret")
	if err != nil {
		t.Fatalf("EncryptAESGCM() error = %v", err)
	}

	ConfigureEncryption("a-different-secret")
	if _, err := DecryptAESGCM(encrypted); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}

func TestDecryptOrPlaintext(t *testing.T) {
	ConfigureEncryption("test-encryption-secret")

	encrypted, err := EncryptAESGCM("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("EncryptAESGCM() error = %v", err)
	}

	if got := DecryptOrPlaintext(""); got != "" {
		t.Errorf("DecryptOrPlaintext(\"\") = %q, want empty", got)
	}
	if got := DecryptOrPlaintext(encrypted); got != "JBSWY3DPEHPK3PXP" {
		t.Errorf("DecryptOrPlaintext(encrypted) = %q, want decrypted secret", got)
	}
	if got := DecryptOrPlaintext("JBSWY3DPEHPK3PXP"); got != "JBSWY3DPEHPK3PXP" {
		t.Errorf("DecryptOrPlaintext(plaintext) = %q, want value unchanged", got)
	}
}

package authportal

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestTOTPEnrollAndValidate(t *testing.T) {
	sf := NewSecondFactor_TOTP(&ConfigTOTP{Issuer: "authportal-test", Skew: 1})
	defer sf.Close()

	url, err := sf.Enroll("joe")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if !strings.HasPrefix(url, "otpauth://totp/") || !strings.Contains(url, "authportal-test") {
		t.Fatalf("Unexpected provisioning URL: %v", url)
	}

	sf.secretsLock.RLock()
	secret := sf.secrets["joe"]
	sf.secretsLock.RUnlock()

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("Unable to generate code: %v", err)
	}
	if err := sf.Validate("joe", code); err != nil {
		t.Fatalf("Expected valid code to verify, got %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if err := sf.Validate("joe", wrong); err != ErrInvalidTOTPCode {
		t.Fatalf("Expected invalid code error, got %v", err)
	}
}

func TestTOTPNotEnrolled(t *testing.T) {
	sf := NewSecondFactor_TOTP(&ConfigTOTP{Issuer: "authportal-test", Skew: 1})
	defer sf.Close()
	if err := sf.Validate("stranger", "123456"); err != ErrSecondFactorNotEnrolled {
		t.Fatalf("Expected not-enrolled error, got %v", err)
	}
}

func TestTOTPRestoredSecret(t *testing.T) {
	first := NewSecondFactor_TOTP(&ConfigTOTP{Issuer: "authportal-test", Skew: 1})
	if _, err := first.Enroll("joe"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	first.secretsLock.RLock()
	secret := first.secrets["joe"]
	first.secretsLock.RUnlock()
	first.Close()

	// A portal restart restores the secret from wherever it was persisted
	second := NewSecondFactor_TOTP(&ConfigTOTP{Issuer: "authportal-test", Skew: 1})
	defer second.Close()
	second.SetSecret("joe", secret)

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("Unable to generate code: %v", err)
	}
	if err := second.Validate("joe", code); err != nil {
		t.Fatalf("Expected restored secret to verify, got %v", err)
	}
}

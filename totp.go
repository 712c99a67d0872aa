package authportal

import (
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Second factor that verifies RFC 6238 time-based one-time passwords.
//
// Secrets live in memory. The portal enrols a user with Enroll (or restores a
// secret that was persisted elsewhere with SetSecret); the cryptographic
// ceremony of proving the code belongs here, the storage of secrets does not.
type totpSecondFactor struct {
	issuer      string
	skew        uint
	secrets     map[string]string
	secretsLock sync.RWMutex
}

func NewSecondFactor_TOTP(config *ConfigTOTP) *totpSecondFactor {
	x := &totpSecondFactor{}
	x.issuer = config.Issuer
	x.skew = config.Skew
	x.secrets = make(map[string]string)
	return x
}

// Enroll generates a fresh secret for the user and returns the otpauth://
// provisioning URL that the front-end renders as a QR code.
func (x *totpSecondFactor) Enroll(username string) (provisioningURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      x.issuer,
		AccountName: username,
	})
	if err != nil {
		return "", err
	}
	x.secretsLock.Lock()
	x.secrets[username] = key.Secret()
	x.secretsLock.Unlock()
	return key.URL(), nil
}

// SetSecret restores a previously enrolled secret.
func (x *totpSecondFactor) SetSecret(username, secret string) {
	x.secretsLock.Lock()
	x.secrets[username] = secret
	x.secretsLock.Unlock()
}

func (x *totpSecondFactor) Validate(username, code string) error {
	x.secretsLock.RLock()
	secret, exists := x.secrets[username]
	x.secretsLock.RUnlock()
	if !exists {
		return ErrSecondFactorNotEnrolled
	}
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      x.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return ErrInvalidTOTPCode
	}
	return nil
}

func (x *totpSecondFactor) Close() {
}

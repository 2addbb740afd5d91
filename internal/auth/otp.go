package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// OTPLength is the handover code length in decimal digits.
const OTPLength = 6

var otpMax = big.NewInt(1_000_000)

// GenerateOTP returns a 6-digit decimal code drawn from a
// cryptographic RNG, zero-padded. Also used for email/phone
// verification codes.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("auth: generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateOpaqueToken returns a 32-byte URL-safe token for password
// reset links.
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

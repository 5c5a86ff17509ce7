package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const temporaryPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// RandomHex returns n random bytes encoded as hex.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// TemporaryPassword returns a random password that satisfies IsStrongPassword.
func TemporaryPassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}
	for {
		out := make([]byte, length)
		max := big.NewInt(int64(len(temporaryPasswordAlphabet)))
		for i := range out {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("security: read random: %w", err)
			}
			out[i] = temporaryPasswordAlphabet[idx.Int64()]
		}
		if IsStrongPassword(string(out)) {
			return string(out), nil
		}
	}
}

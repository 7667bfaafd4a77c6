package keygen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultPasswordLength gives roughly 140 bits of entropy over the alphabet.
const DefaultPasswordLength = 24

const alphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratePassword returns a random password of the given length.
func GeneratePassword(length int) (string, error) {
	if length < 12 {
		return "", fmt.Errorf("password length %d is too short (minimum 12)", length)
	}

	limit := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

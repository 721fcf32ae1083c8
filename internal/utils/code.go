package utils

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

// NewResetCode returns a 6-digit password-reset code drawn uniformly from
// 100000–999999 using the crypto/rand source.
func NewResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

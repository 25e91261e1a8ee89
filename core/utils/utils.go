package utils

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

// RandString returns n hex characters from a crypto-random source.
func RandString(n int) (string, error) {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}

package auth

import (
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"

	"agente-digital/core/utils"
)

// argon2id parameters. Changing them invalidates stored hashes, so any new
// tuning needs a rehash-on-login migration first.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashPassword derives an argon2id hash over password+pepper with a fresh
// random salt. Salt and hash are returned base64-encoded for storage.
func HashPassword(password, pepper string) (hash, salt string, err error) {
	saltChars, err := utils.RandString(saltLen)
	if err != nil {
		return "", "", err
	}
	rawSalt := []byte(saltChars)
	key := argon2.IDKey([]byte(password+pepper), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(rawSalt), nil
}

// VerifyPassword recomputes the hash with the stored salt and compares in
// constant time.
func VerifyPassword(password, pepper, storedHash, storedSalt string) bool {
	rawSalt, err := base64.StdEncoding.DecodeString(storedSalt)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password+pepper), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

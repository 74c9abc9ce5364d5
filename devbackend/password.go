package devbackend

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

type passwordHash struct {
	hash string
	salt string
}

func hashPassword(password string) (*passwordHash, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return &passwordHash{
		hash: base64.RawStdEncoding.EncodeToString(key),
		salt: base64.RawStdEncoding.EncodeToString(salt),
	}, nil
}

func mustHashPassword(password string) *passwordHash {
	p, err := hashPassword(password)
	if err != nil {
		panic(err)
	}
	return p
}

func verifyPassword(password string, stored *passwordHash) bool {
	if stored == nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(stored.salt)
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(stored.hash)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(key, expected) == 1
}

package services

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/imbroke/backend/internal/config"
	"golang.org/x/crypto/argon2"
)

// PasswordHasher stores passwords as base64(salt)$base64(argon2id hash).
type PasswordHasher struct {
	cfg config.Argon2Config
}

func NewPasswordHasher(cfg config.Argon2Config) *PasswordHasher {
	return &PasswordHasher{cfg: cfg}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := h.derive(password, salt)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (h *PasswordHasher) Verify(password, hashedPassword string) bool {
	saltPart, hashPart, ok := strings.Cut(hashedPassword, "$")
	if !ok {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	hash, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(hash, h.derive(password, salt)) == 1
}

func (h *PasswordHasher) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Threads, h.cfg.KeyLength)
}

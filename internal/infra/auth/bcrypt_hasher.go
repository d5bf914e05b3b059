package auth

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	"pulse/config"
	"pulse/internal/domain/service"
)

// bcryptHasher is a concrete implementation of the TokenHasher interface using bcrypt.
// Raw credentials are pre-digested with SHA-256 because bcrypt only considers
// the first 72 bytes of its input and signed tokens exceed that.
type bcryptHasher struct {
	cost int
}

// NewBcryptHasher is the constructor for bcryptHasher.
// It returns the implementation as a service.TokenHasher interface.
func NewBcryptHasher(cfg *config.Config) service.TokenHasher {
	cost := bcrypt.DefaultCost
	if cfg != nil && cfg.Auth != nil && cfg.Auth.BcryptCost >= bcrypt.MinCost && cfg.Auth.BcryptCost <= bcrypt.MaxCost {
		cost = cfg.Auth.BcryptCost
	}

	return &bcryptHasher{cost: cost}
}

// Hash generates a salted hash from a raw credential using bcrypt.
// bcrypt automatically handles salt generation.
func (h *bcryptHasher) Hash(raw string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(digest(raw), h.cost)

	return string(bytes), err
}

// Check compares a raw credential with a bcrypt hash.
func (h *bcryptHasher) Check(raw, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), digest(raw))
	// err is nil if the credential and hash match.
	return err == nil
}

func digest(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(encoded, sum[:])

	return encoded
}

package service

// TokenHasher defines the interface for one-way hashing of raw refresh
// credentials before they touch the durable store. The hash must not be
// derivable for lookup, so matching is done by comparison, never by key.
type TokenHasher interface {
	// Hash generates a salted one-way hash from a raw credential.
	Hash(raw string) (string, error)

	// Check compares a raw credential with a stored hash.
	Check(raw, hash string) bool
}

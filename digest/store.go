// Package digest keeps the one-way digests of the configured passwords and
// answers credential checks against them.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sum returns the lowercase hex encoded SHA-224 digest of plaintext. Peers
// compute the very same value, so no salt is involved.
func Sum(plaintext string) string {
	sum := sha256.Sum224([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

type credential struct {
	plaintext string
	digest    string
}

// Store is an ordered set of passwords and their digests. It is immutable
// after NewStore and safe for concurrent use.
type Store struct {
	creds     []credential
	digestLen int
}

// NewStore computes digests for all passwords, preserving their order.
func NewStore(passwords []string) *Store {
	s := &Store{
		creds: make([]credential, 0, len(passwords)),
	}
	for _, pass := range passwords {
		d := Sum(pass)
		s.digestLen = len(d)
		s.creds = append(s.creds, credential{
			plaintext: pass,
			digest:    d,
		})
	}
	return s
}

// Verify looks up the password whose digest equals candidate.
func (s *Store) Verify(candidate string) (string, bool) {
	if len(candidate) != s.digestLen {
		return "", false
	}
	for _, c := range s.creds {
		if subtle.ConstantTimeCompare([]byte(c.digest), []byte(candidate)) == 1 {
			return c.plaintext, true
		}
	}
	return "", false
}

// DigestLen is the encoded length of every digest in the store, i.e. how
// many bytes a caller has to read off the wire before calling Verify.
func (s *Store) DigestLen() int {
	return s.digestLen
}

// Len returns number of stored credentials.
func (s *Store) Len() int {
	return len(s.creds)
}

// Primary returns the digest of the first configured password. It is the one
// presented on outbound negotiation. Empty store yields empty string.
func (s *Store) Primary() string {
	if len(s.creds) == 0 {
		return ""
	}
	return s.creds[0].digest
}

// Package pseudonym derives stable, non-reversible participant identifiers.
//
// A pseudonym is `psn_` followed by the first 32 hex digits of
// HMAC-<PSEUDONYMIZATION_HASH_ALGORITHM>(PSEUDONYMIZATION_SALT, id).  The same
// salt and id always yield the same pseudonym; rotating the salt unlinks
// every previously issued one.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

const (
	participantPrefix = "psn_"
	researchPrefix    = "rid_"
	participantDigits = 32
	researchDigits    = 16
)

// ErrEmptySalt is returned when no salt is configured.
var ErrEmptySalt = errors.New("pseudonym: empty salt")

// Hasher maps identifiers to pseudonyms.
type Hasher struct {
	salt []byte
	newH func() hash.Hash
}

// New returns a Hasher for salt and algorithm (SHA256 or SHA512, any case).
func New(salt, algorithm string) (*Hasher, error) {
	if salt == "" {
		return nil, ErrEmptySalt
	}
	var h func() hash.Hash
	switch strings.ToUpper(algorithm) {
	case "SHA256", "SHA-256":
		h = sha256.New
	case "SHA512", "SHA-512":
		h = sha512.New
	default:
		return nil, fmt.Errorf("pseudonym: unsupported hash algorithm %q", algorithm)
	}
	return &Hasher{salt: []byte(salt), newH: h}, nil
}

// FromSettings builds a Hasher from the pseudonymization section.
func FromSettings(s *config.Settings) (*Hasher, error) {
	return New(s.Salt, s.HashAlgorithm)
}

// Participant returns the pseudonym for id.
func (h *Hasher) Participant(id string) string {
	return participantPrefix + h.digest([]byte(id))[:participantDigits]
}

// ResearchID returns a shorter identifier for id scoped to one study, so
// exports from different studies cannot be joined on it.
func (h *Hasher) ResearchID(study, id string) string {
	msg := make([]byte, 0, len(study)+1+len(id))
	msg = append(msg, study...)
	msg = append(msg, 0)
	msg = append(msg, id...)
	return researchPrefix + h.digest(msg)[:researchDigits]
}

func (h *Hasher) digest(msg []byte) string {
	m := hmac.New(h.newH, h.salt)
	m.Write(msg)
	return hex.EncodeToString(m.Sum(nil))
}

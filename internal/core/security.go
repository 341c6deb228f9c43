// AngelaMos | 2026
// security.go

package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	fingerprintDigestLen = 20
	maxFingerprintLen    = 512
)

// FingerprintHasher turns client fingerprints into keyed digests so raw
// device identifiers never reach storage or logs.
type FingerprintHasher struct {
	key []byte
}

func NewFingerprintHasher(secret string) (*FingerprintHasher, error) {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	// validate the key once so Hash never has to report an error
	if _, err := blake2b.New(fingerprintDigestLen, key); err != nil {
		return nil, fmt.Errorf("init fingerprint hasher: %w", err)
	}

	return &FingerprintHasher{key: key}, nil
}

func (h *FingerprintHasher) Hash(fingerprint string) string {
	fingerprint = strings.TrimSpace(fingerprint)
	if len(fingerprint) > maxFingerprintLen {
		fingerprint = fingerprint[:maxFingerprintLen]
	}

	//nolint:errcheck // key length validated in NewFingerprintHasher
	mac, _ := blake2b.New(fingerprintDigestLen, h.key)
	mac.Write([]byte(fingerprint))
	return hex.EncodeToString(mac.Sum(nil))
}

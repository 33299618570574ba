package transport

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// DefaultSignatureScheme is used when the connection file leaves the scheme empty.
const DefaultSignatureScheme = "hmac-sha256"

var schemes = map[string]func() hash.Hash{
	"hmac-sha1":   sha1.New,
	"hmac-sha256": sha256.New,
	"hmac-sha512": sha512.New,
}

// Signer computes and checks message signatures with the session key.
// Unsigned operation is not supported: an empty key or a "none" scheme is
// a configuration error.
type Signer struct {
	scheme string
	key    []byte
	hash   func() hash.Hash
}

// NewSigner creates a Signer for the given scheme and key.
func NewSigner(scheme string, key []byte) (*Signer, error) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		scheme = DefaultSignatureScheme
	}

	if scheme == "none" || scheme == "off" {
		return nil, fmt.Errorf("%w: message signing cannot be disabled", ErrConfiguration)
	}

	h, ok := schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported signature scheme %q", ErrConfiguration, scheme)
	}

	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty signing key", ErrConfiguration)
	}

	return &Signer{scheme: scheme, key: append([]byte(nil), key...), hash: h}, nil
}

func (s *Signer) Scheme() string {
	return s.scheme
}

// Sign returns the lowercase hex HMAC over parts in order.
func (s *Signer) Sign(parts ...[]byte) []byte {
	mac := hmac.New(s.hash, s.key)
	for _, p := range parts {
		mac.Write(p)
	}
	sum := mac.Sum(nil)

	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

// Verify reports whether sig is the signature of parts. The comparison is
// constant-time.
func (s *Signer) Verify(sig []byte, parts ...[]byte) bool {
	want := s.Sign(parts...)
	return hmac.Equal(want, []byte(strings.ToLower(string(sig))))
}

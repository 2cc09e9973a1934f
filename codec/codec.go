// Package codec generates and protects the secrets the server hands out:
// opaque tokens and codes, client secrets and PKCE challenges.
package codec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// MinTokenBytes is the smallest accepted random token size (128 bits).
const MinTokenBytes = 16

const minDigestKeyBytes = 16

var verifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// Codec is safe for concurrent use.
type Codec struct {
	digestKey []byte
	cost      int
}

type Option func(*Codec)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(c *Codec) {
		c.cost = cost
	}
}

// New creates a Codec whose lookup digests are keyed with digestKey.
func New(digestKey []byte, options ...Option) (*Codec, error) {
	if len(digestKey) < minDigestKeyBytes {
		return nil, fmt.Errorf("[codec.New] digest key must be at least %d bytes", minDigestKeyBytes)
	}
	c := &Codec{
		digestKey: append([]byte(nil), digestKey...),
		cost:      bcrypt.DefaultCost,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.cost < bcrypt.MinCost || c.cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("[codec.New] bcrypt cost %d out of range", c.cost)
	}
	return c, nil
}

// GenerateToken returns byteLength random bytes, hex encoded.
func (c *Codec) GenerateToken(byteLength int) (string, error) {
	if byteLength < MinTokenBytes {
		return "", fmt.Errorf("[GenerateToken] token must be at least %d bytes, got %d", MinTokenBytes, byteLength)
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[GenerateToken] reading random bytes")
	}
	return hex.EncodeToString(b), nil
}

// Hash returns an adaptive, salted hash of secret.
func (c *Codec) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
	if err != nil {
		return "", errors.Wrap(err, "[Hash] bcrypt")
	}
	return string(h), nil
}

// Verify checks secret against a hash produced by Hash.
func (c *Codec) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// Digest is the deterministic keyed digest stored as the lookup index for
// codes and bearer tokens. Without the key it cannot be recomputed from a
// leaked table.
func (c *Codec) Digest(secret string) string {
	mac := hmac.New(sha256.New, c.digestKey)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// PKCEChallenge derives the code_challenge for verifier under method.
func PKCEChallenge(verifier string, method oauth2.CodeMethodType) (string, error) {
	switch method {
	case oauth2.CodeMethodTypePlain:
		return verifier, nil
	case oauth2.CodeMethodTypeS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("[PKCEChallenge] unsupported code challenge method %q", method)
	}
}

// PKCEVerify recomputes the challenge from verifier and compares it in
// constant time.
func PKCEVerify(verifier, challenge string, method oauth2.CodeMethodType) bool {
	computed, err := PKCEChallenge(verifier, method)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// ValidVerifier reports whether verifier has the RFC 7636 §4.1 syntax.
func ValidVerifier(verifier string) bool {
	return verifierPattern.MatchString(verifier)
}

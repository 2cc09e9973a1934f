package keys

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs ID tokens and publishes the matching public key.
type Signer interface {
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey is a jwt.Keyfunc accepting only this signer's
	// RSA key, selected by kid when the token carries one.
	GetVerificationKey(token *jwt.Token) (any, error)

	GetSigningMethod() jwt.SigningMethod
	GetJWKS() (*JWKS, error)
}

var _ Signer = (*KeyPairSigner)(nil)

// KeyPairSigner signs RS256 with a single key pair. Every token it signs
// carries the pair's kid so relying parties can pick the key from the JWKS.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

// KeyID is the kid of the active signing key.
func (s *KeyPairSigner) KeyID() string {
	return s.keyPair.KeyID
}

func (s *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(s.keyPair.GetSigningMethod(), claims)
	t.Header["kid"] = s.keyPair.KeyID
	signed, err := t.SignedString(s.keyPair.PrivateKey)
	return signed, errors.Wrap(err, "[KeyPairSigner.Sign]")
}

func (s *KeyPairSigner) GetVerificationKey(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, errors.Errorf("[KeyPairSigner] alg %v is not RSA", t.Header["alg"])
	}
	kid, _ := t.Header["kid"].(string)
	if kid != "" && kid != s.keyPair.KeyID {
		return nil, errors.Errorf("[KeyPairSigner] no key with kid %q", kid)
	}
	return s.keyPair.PublicKey, nil
}

func (s *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return s.keyPair.GetSigningMethod()
}

func (s *KeyPairSigner) GetJWKS() (*JWKS, error) {
	jwk, err := s.keyPair.ToJWK()
	if err != nil {
		return nil, errors.Wrap(err, "[KeyPairSigner.GetJWKS]")
	}
	return &JWKS{Keys: []JWK{*jwk}}, nil
}

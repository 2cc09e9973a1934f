package idtoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
	"github.com/jrsteele09/go-oidc-provider/token/keys"
	"github.com/jrsteele09/go-oidc-provider/users"
)

const defaultExpiry = time.Hour

// Request holds what an ID token is built from.
type Request struct {
	Issuer   string
	ClientID string
	User     *users.User
	Scopes   []string
	Nonce    string
}

// Issuer signs OIDC ID tokens.
type Issuer struct {
	signer  keys.Signer
	expiry  time.Duration
	nowFunc func() time.Time
}

type IssuerOption func(*Issuer)

func WithExpiry(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.expiry = d
		}
	}
}

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer accepts a nil signer; Issue then fails with
// ErrSigningKeyUnavailable instead of producing an unsigned token.
func NewIssuer(signer keys.Signer, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer:  signer,
		expiry:  defaultExpiry,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i
}

func (i *Issuer) Issue(req Request) (string, error) {
	if i.signer == nil {
		return "", oautherrors.ErrSigningKeyUnavailable
	}
	if req.User == nil || req.Issuer == "" || req.ClientID == "" {
		return "", errors.New("[idtoken.Issue] issuer, client and user are required")
	}

	now := i.nowFunc()
	claims := jwt.MapClaims{
		"iss": req.Issuer,
		"aud": req.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(i.expiry).Unix(),
	}
	for k, v := range UserClaims(req.User, req.Scopes) {
		claims[k] = v
	}
	if req.Nonce != "" {
		claims["nonce"] = req.Nonce
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(oautherrors.ErrSigningKeyUnavailable, err.Error())
	}
	return signed, nil
}

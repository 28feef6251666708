package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// Validator verifies session tokens signed by an Issuer sharing its secret.
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

type validatorConfig struct {
	issuer string
	now    func() time.Time
}

type ValidatorOption func(*validatorConfig)

func WithExpectedIssuer(iss string) ValidatorOption {
	return func(c *validatorConfig) {
		if iss != "" {
			c.issuer = iss
		}
	}
}

func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(c *validatorConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func NewValidator(secret []byte, opts ...ValidatorOption) *Validator {
	cfg := validatorConfig{issuer: DefaultIssuer, now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	return &Validator{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithIssuer(cfg.issuer),
			jwt.WithTimeFunc(cfg.now),
		),
	}
}

// Validate parses token and returns its claims. Errors are one of
// ErrMissingToken, ErrTokenExpired or ErrTokenInvalid, wrapping the parser's
// reason.
func (v *Validator) Validate(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, xerrors.Wrap(ErrTokenExpired, err.Error())
	default:
		return nil, xerrors.Wrap(ErrTokenInvalid, err.Error())
	}
	if !claims.Role.Valid() {
		return nil, xerrors.Wrapf(ErrTokenInvalid, "role %q", string(claims.Role))
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", ErrMissingToken
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

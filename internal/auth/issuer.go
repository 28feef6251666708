package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const (
	DefaultSessionTTL = 4 * time.Hour

	// MinSecretLen is the shortest HMAC secret accepted.
	MinSecretLen = 32
)

// Session is a freshly signed token.
type Session struct {
	Token     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn is the token lifetime in whole seconds.
func (s Session) ExpiresIn() int64 {
	return int64(s.ExpiresAt.Sub(s.IssuedAt) / time.Second)
}

// Issuer verifies passwords and signs session tokens.
type Issuer struct {
	secret     []byte
	adminHash  []byte
	viewerHash []byte
	ttl        time.Duration
	issuer     string
	now        func() time.Time
}

type IssuerOption func(*Issuer)

func WithSessionTTL(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.ttl = d
		}
	}
}

// WithViewerHash enables read-only logins for a second password.
func WithViewerHash(hash string) IssuerOption {
	return func(i *Issuer) {
		if hash != "" {
			i.viewerHash = []byte(hash)
		}
	}
}

// WithIssuerName sets the iss claim, so deployments sharing a secret cannot
// accept each other's sessions.
func WithIssuerName(iss string) IssuerOption {
	return func(i *Issuer) {
		if iss != "" {
			i.issuer = iss
		}
	}
}

func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer validates the secret and hashes up front so a misconfigured
// server fails at startup rather than on first login.
func NewIssuer(secret []byte, adminHash string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) < MinSecretLen {
		return nil, xerrors.Newf("auth: jwt secret must be at least %d bytes", MinSecretLen)
	}
	if _, err := bcrypt.Cost([]byte(adminHash)); err != nil {
		return nil, xerrors.Wrap(err, "auth: admin password hash is not a bcrypt hash")
	}
	i := &Issuer{
		secret:    secret,
		adminHash: []byte(adminHash),
		ttl:       DefaultSessionTTL,
		issuer:    DefaultIssuer,
		now:       time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	if i.viewerHash != nil {
		if _, err := bcrypt.Cost(i.viewerHash); err != nil {
			return nil, xerrors.Wrap(err, "auth: viewer password hash is not a bcrypt hash")
		}
	}
	return i, nil
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Login checks password against the admin hash, then the viewer hash if one
// is configured, and returns a signed session for the matching role.
func (i *Issuer) Login(ctx context.Context, password string) (Session, error) {
	if password == "" {
		return Session{}, ErrPasswordRequired
	}
	role, err := i.match(password)
	if err != nil {
		return Session{}, err
	}
	return i.Issue(role)
}

func (i *Issuer) match(password string) (Role, error) {
	err := bcrypt.CompareHashAndPassword(i.adminHash, []byte(password))
	if err == nil {
		return RoleAdmin, nil
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return "", xerrors.Wrap(err, "compare admin hash")
	}
	if i.viewerHash == nil {
		return "", ErrBadCredentials
	}
	err = bcrypt.CompareHashAndPassword(i.viewerHash, []byte(password))
	if err == nil {
		return RoleViewer, nil
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return "", xerrors.Wrap(err, "compare viewer hash")
	}
	return "", ErrBadCredentials
}

// Issue signs a token for role without checking a password.
func (i *Issuer) Issue(role Role) (Session, error) {
	if !role.Valid() {
		return Session{}, xerrors.Newf("auth: cannot issue token for role %q", string(role))
	}
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   string(role),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Session{}, xerrors.Wrap(err, "sign session token")
	}
	return Session{Token: tok, Role: role, IssuedAt: now, ExpiresAt: exp}, nil
}

// HashPassword returns a bcrypt hash suitable for the admin or viewer hash settings.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrPasswordRequired
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", xerrors.Wrap(err, "bcrypt hash")
	}
	return string(b), nil
}

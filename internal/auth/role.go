package auth

import "github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"

// Role is the privilege level carried in a session token.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

func (r Role) String() string { return string(r) }

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, xerrors.Newf("auth: unknown role %q", string(r))
	}
	return []byte(r), nil
}

// UnmarshalText rejects roles outside the closed set, so a token with an
// unexpected role fails to parse.
func (r *Role) UnmarshalText(b []byte) error {
	v := Role(b)
	if !v.Valid() {
		return xerrors.Newf("auth: unknown role %q", string(b))
	}
	*r = v
	return nil
}

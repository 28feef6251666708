package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := HashPassword(pw, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return h
}

// fixedClock returns a clock pinned at t, adjustable by the caller.
type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newTestIssuer(t *testing.T, clk *fixedClock, opts ...IssuerOption) *Issuer {
	t.Helper()
	opts = append([]IssuerOption{WithIssuerClock(clk.Now)}, opts...)
	iss, err := NewIssuer(testSecret, mustHash(t, "correct horse"), opts...)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func TestNewIssuer_Validation(t *testing.T) {
	if _, err := NewIssuer([]byte("short"), mustHash(t, "x")); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := NewIssuer(testSecret, "plaintext"); err == nil {
		t.Fatal("expected error for non-bcrypt admin hash")
	}
	if _, err := NewIssuer(testSecret, mustHash(t, "x"), WithViewerHash("nope")); err == nil {
		t.Fatal("expected error for non-bcrypt viewer hash")
	}
}

func TestLogin_Errors(t *testing.T) {
	iss := newTestIssuer(t, &fixedClock{t: time.Now()})

	if _, err := iss.Login(t.Context(), ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("empty password err = %v, want ErrPasswordRequired", err)
	}
	if _, err := iss.Login(t.Context(), "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password err = %v, want ErrBadCredentials", err)
	}
}

func TestLogin_AdminTokenLifetime(t *testing.T) {
	clk := &fixedClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clk)

	s, err := iss.Login(t.Context(), "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.Role != RoleAdmin {
		t.Fatalf("role = %s, want admin", s.Role)
	}
	if s.ExpiresIn() != int64(DefaultSessionTTL/time.Second) {
		t.Fatalf("ExpiresIn = %d, want %d", s.ExpiresIn(), int64(DefaultSessionTTL/time.Second))
	}

	v := NewValidator(testSecret, WithValidatorClock(clk.Now))
	c, err := v.Validate(s.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Role != RoleAdmin {
		t.Fatalf("claims role = %s", c.Role)
	}
	if got := c.ExpiresAt.Sub(c.IssuedAt.Time); got != DefaultSessionTTL {
		t.Fatalf("exp - iat = %s, want %s", got, DefaultSessionTTL)
	}
	if c.Issuer != DefaultIssuer {
		t.Fatalf("iss = %q", c.Issuer)
	}
}

func TestValidate_IssuerMustMatch(t *testing.T) {
	clk := &fixedClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clk, WithIssuerName("folio-staging"))

	s, err := iss.Login(t.Context(), "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	c, err := NewValidator(testSecret, WithValidatorClock(clk.Now), WithExpectedIssuer("folio-staging")).Validate(s.Token)
	if err != nil {
		t.Fatalf("Validate with matching issuer: %v", err)
	}
	if c.Issuer != "folio-staging" {
		t.Fatalf("iss = %q", c.Issuer)
	}

	if _, err := NewValidator(testSecret, WithValidatorClock(clk.Now)).Validate(s.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("default issuer err = %v, want ErrTokenInvalid", err)
	}
}

func TestLogin_Viewer(t *testing.T) {
	clk := &fixedClock{t: time.Now()}
	iss := newTestIssuer(t, clk, WithViewerHash(mustHash(t, "look only")))

	s, err := iss.Login(t.Context(), "look only")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if s.Role != RoleViewer {
		t.Fatalf("role = %s, want viewer", s.Role)
	}
	if _, err := iss.Login(t.Context(), "neither"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}

func TestValidate_ExpiredIsDistinguishable(t *testing.T) {
	clk := &fixedClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clk, WithSessionTTL(time.Hour))
	s, err := iss.Issue(RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	clk.t = clk.t.Add(time.Hour + time.Second)
	v := NewValidator(testSecret, WithValidatorClock(clk.Now))
	_, err = v.Validate(s.Token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Fatal("expired token must not also report ErrTokenInvalid")
	}
}

func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestValidate_Invalid(t *testing.T) {
	now := time.Now()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"role": "admin",
			"iss":  DefaultIssuer,
			"iat":  now.Unix(),
			"exp":  now.Add(time.Hour).Unix(),
		}
	}
	good := signRaw(t, jwt.SigningMethodHS256, testSecret, base())

	unknownRole := base()
	unknownRole["role"] = "root"
	noRole := base()
	delete(noRole, "role")
	noExp := base()
	delete(noExp, "exp")
	otherIss := base()
	otherIss["iss"] = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"tampered", good[:len(good)-2] + "xx"},
		{"wrong secret", signRaw(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-32"), base())},
		{"hs512", signRaw(t, jwt.SigningMethodHS512, testSecret, base())},
		{"none", signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, base())},
		{"unknown role", signRaw(t, jwt.SigningMethodHS256, testSecret, unknownRole)},
		{"no role", signRaw(t, jwt.SigningMethodHS256, testSecret, noRole)},
		{"no exp", signRaw(t, jwt.SigningMethodHS256, testSecret, noExp)},
		{"other issuer", signRaw(t, jwt.SigningMethodHS256, testSecret, otherIss)},
	}

	v := NewValidator(testSecret)
	if _, err := v.Validate(good); err != nil {
		t.Fatalf("baseline token rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Validate(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("err = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"", "", ErrMissingToken},
		{"Bearer", "", ErrMissingToken},
		{"Bearer ", "", ErrMissingToken},
		{"Basic abc", "", ErrMissingToken},
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, err := BearerToken(r)
		if got != tt.want || !errors.Is(err, tt.err) {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.err)
		}
	}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestMiddleware(t *testing.T) {
	clk := &fixedClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clk, WithViewerHash(mustHash(t, "viewer")))
	v := NewValidator(testSecret, WithValidatorClock(clk.Now))

	admin, _ := iss.Issue(RoleAdmin)
	viewer, _ := iss.Issue(RoleViewer)

	var seen *Claims
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	adminOnly := v.Middleware(RequireRole(RoleAdmin)(final))

	do := func(h http.Handler, auth string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPut, "/api/admin/stats", nil)
		if auth != "" {
			r.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	t.Run("missing", func(t *testing.T) {
		rec := do(adminOnly, "")
		if rec.Code != http.StatusUnauthorized || errorBody(t, rec) != "token missing" {
			t.Fatalf("got %d", rec.Code)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		rec := do(adminOnly, "Bearer nope")
		if rec.Code != http.StatusForbidden || errorBody(t, rec) != "invalid token" {
			t.Fatalf("got %d", rec.Code)
		}
	})
	t.Run("admin", func(t *testing.T) {
		seen = nil
		rec := do(adminOnly, "Bearer "+admin.Token)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
		}
		if seen == nil || seen.Role != RoleAdmin {
			t.Fatalf("claims not attached: %+v", seen)
		}
	})
	t.Run("viewer on admin route", func(t *testing.T) {
		rec := do(adminOnly, "Bearer "+viewer.Token)
		if rec.Code != http.StatusForbidden || errorBody(t, rec) != "insufficient role" {
			t.Fatalf("got %d", rec.Code)
		}
	})
	t.Run("viewer on any-role route", func(t *testing.T) {
		rec := do(v.Middleware(final), "Bearer "+viewer.Token)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("got %d", rec.Code)
		}
	})
	t.Run("expired", func(t *testing.T) {
		late := NewValidator(testSecret, WithValidatorClock(func() time.Time {
			return clk.t.Add(DefaultSessionTTL + time.Minute)
		}))
		rec := do(late.Middleware(final), "Bearer "+admin.Token)
		if rec.Code != http.StatusForbidden || errorBody(t, rec) != "token expired" {
			t.Fatalf("got %d", rec.Code)
		}
	})
	t.Run("require role without middleware", func(t *testing.T) {
		rec := do(RequireRole(RoleAdmin)(final), "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("got %d", rec.Code)
		}
	})
}

func TestRole_Text(t *testing.T) {
	var r Role
	if err := r.UnmarshalText([]byte("viewer")); err != nil || r != RoleViewer {
		t.Fatalf("UnmarshalText viewer = %v, %v", r, err)
	}
	if err := r.UnmarshalText([]byte("superuser")); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := Role("x").MarshalText(); err == nil {
		t.Fatal("expected error marshaling unknown role")
	}
	if !strings.EqualFold(RoleAdmin.String(), "admin") {
		t.Fatal("String")
	}
}

package apihttp

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-folio/internal/auth"
	"github.com/keithlinneman/linnemanlabs-folio/internal/httpmw"
)

type loginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the session token and its lifetime in seconds.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expiresIn"`
	Role      auth.Role `json:"role"`
}

// VerifyResponse describes the caller's session.
type VerifyResponse struct {
	Valid bool        `json:"valid"`
	User  SessionUser `json:"user"`
}

type SessionUser struct {
	Role auth.Role `json:"role"`
	IAT  int64     `json:"iat"`
	EXP  int64     `json:"exp"`
}

// HandleLogin exchanges the password for a session token. Every response
// takes at least the configured login delay.
func (api *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := api.now()

	status, resp := api.login(r)

	if wait := api.loginDelay - api.now().Sub(start); wait > 0 {
		api.sleep(ctx, wait)
	}
	api.writeJSON(ctx, w, status, resp)
}

func (api *API) login(r *http.Request) (int, any) {
	ctx := r.Context()
	addr := clientAddr(r)

	locked, err := api.guard.IsLocked(ctx, addr)
	if err != nil {
		// fail closed
		api.metrics.IncLoginAttempt("error")
		api.loggerFor(ctx).Error(ctx, err, "login guard unavailable")
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
	if locked {
		api.metrics.IncLoginAttempt("locked")
		api.loggerFor(ctx).Warn(ctx, "login rejected for locked address", "client.address", addr)
		return http.StatusTooManyRequests, errorResponse{Error: "too many failed attempts"}
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.metrics.IncLoginAttempt("bad_request")
		return http.StatusBadRequest, errorResponse{Error: "invalid request body"}
	}

	sess, err := api.issuer.Login(ctx, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrPasswordRequired):
		api.metrics.IncLoginAttempt("bad_request")
		return http.StatusBadRequest, errorResponse{Error: auth.ErrPasswordRequired.Error()}
	case errors.Is(err, auth.ErrBadCredentials):
		api.metrics.IncLoginAttempt("invalid")
		rec, gerr := api.guard.RecordFailure(ctx, addr)
		if gerr != nil {
			// fail closed
			api.loggerFor(ctx).Error(ctx, gerr, "failed to record login failure", "client.address", addr)
			return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
		}
		api.loggerFor(ctx).Warn(ctx, "login failed", "client.address", addr, "failures", rec.Count)
		return http.StatusUnauthorized, errorResponse{Error: auth.ErrBadCredentials.Error()}
	default:
		api.metrics.IncLoginAttempt("error")
		api.loggerFor(ctx).Error(ctx, err, "login failed")
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}

	if err := api.guard.Clear(ctx, addr); err != nil {
		api.loggerFor(ctx).Warn(ctx, "failed to clear login failures", "client.address", addr, "error", err)
	}

	result := "success"
	if sess.Role == auth.RoleViewer {
		result = "viewer"
	}
	api.metrics.IncLoginAttempt(result)
	api.loggerFor(ctx).Info(ctx, "session issued", "role", sess.Role, "expires_at", sess.ExpiresAt)

	return http.StatusOK, LoginResponse{
		Token:     sess.Token,
		ExpiresIn: sess.ExpiresIn(),
		Role:      sess.Role,
	}
}

// HandleVerify reports the claims of the caller's session. The validator
// middleware has already rejected anything else.
func (api *API) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		api.writeError(ctx, w, http.StatusUnauthorized, auth.ErrMissingToken.Error())
		return
	}

	user := SessionUser{Role: c.Role}
	if c.IssuedAt != nil {
		user.IAT = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		user.EXP = c.ExpiresAt.Unix()
	}
	api.writeJSON(ctx, w, http.StatusOK, VerifyResponse{Valid: true, User: user})
}

// clientAddr is the address failures are counted against.
func clientAddr(r *http.Request) string {
	if ip := httpmw.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

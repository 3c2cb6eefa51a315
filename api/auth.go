/*
auth.go - Bearer token authentication

PURPOSE:
  Turns an "Authorization: Bearer <jwt>" header into an admission.Caller
  stored on the request context. Tokens are HS256 and carry the user id
  in the "sub" claim.

  Authentication never rejects a request by itself. A missing, malformed
  or expired token leaves the context without a caller, and whoever needs
  one (the engine, or a handler) reports Unauthenticated.

SEE ALSO:
  - admission/permission.go: Authenticate / Authorize
  - admission/store.go: CallerResolver
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/request-engine/admission"
)

type callerKey struct{}

// WithCaller returns ctx carrying caller.
func WithCaller(ctx context.Context, caller *admission.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the authenticated caller or nil.
func CallerFromContext(ctx context.Context) *admission.Caller {
	caller, _ := ctx.Value(callerKey{}).(*admission.Caller)
	return caller
}

// =============================================================================
// TOKENS
// =============================================================================

// SignToken issues an HS256 token for userID valid for ttl from now.
func SignToken(secret []byte, userID admission.UserID, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	claims := jwt.RegisteredClaims{
		Subject:   string(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticator validates bearer tokens and resolves their subject.
type Authenticator struct {
	Secret   []byte
	Resolver admission.CallerResolver
	Log      logrus.FieldLogger

	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// parse returns the token subject.
func (a *Authenticator) parse(raw string) (admission.UserID, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.Now))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return admission.UserID(claims.Subject), nil
}

// Middleware attaches the resolved caller to the request context.
// Only a resolver failure ends the request (500).
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := a.parse(strings.TrimSpace(raw))
		if err != nil {
			if a.Log != nil {
				a.Log.WithError(err).Debug("ignoring invalid bearer token")
			}
			next.ServeHTTP(w, r)
			return
		}

		caller, err := a.Resolver.ResolveCaller(r.Context(), userID)
		if err != nil {
			if a.Log != nil {
				a.Log.WithError(err).WithField("user_id", userID).Error("resolve caller")
			}
			writeError(w, http.StatusInternalServerError, "internal error", nil)
			return
		}
		if caller != nil {
			r = r.WithContext(WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

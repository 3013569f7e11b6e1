package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is the session cookie the SPA sends with every request.
const DefaultCookieName = "mh_session"

type ctxKeyViewer struct{}

// Viewer is the signed-in user's snapshot carried in the session token.
// The nickname and avatar ride along so the edge can decorate writes
// without a round trip to the user service.
type Viewer struct {
	ID        int64
	Nickname  string
	AvatarURL string
}

func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(ctxKeyViewer{}).(Viewer)
	return v, ok
}

// WithViewer injects a viewer into context. Useful for testing.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, ctxKeyViewer{}, v)
}

type Claims struct {
	jwt.RegisteredClaims
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SessionVerifier validates HS256 session tokens minted by the upstream
// auth flow. CookieName falls back to DefaultCookieName when empty.
type SessionVerifier struct {
	Secret     []byte
	CookieName string
}

func (v SessionVerifier) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (v SessionVerifier) cookieName() string {
	if strings.TrimSpace(v.CookieName) == "" {
		return DefaultCookieName
	}
	return v.CookieName
}

// tokenFromRequest prefers the session cookie and falls back to a bearer
// header so non-browser clients can authenticate too.
func tokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (v SessionVerifier) viewerFromToken(tokenString string) (Viewer, bool) {
	claims, err := v.Parse(tokenString)
	if err != nil {
		return Viewer{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || id <= 0 {
		return Viewer{}, false
	}
	return Viewer{ID: id, Nickname: claims.Nickname, AvatarURL: claims.AvatarURL}, true
}

// RequireUser rejects requests without a valid session and injects the
// viewer into context.
func RequireUser(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := tokenFromRequest(r, verifier.cookieName())
			if tok == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			viewer, ok := verifier.viewerFromToken(tok)
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
		})
	}
}

// OptionalUser injects the viewer when a valid session is present and lets
// anonymous requests through untouched. Thread fetches use it so signed-in
// viewers get their like state decorated.
func OptionalUser(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := tokenFromRequest(r, verifier.cookieName()); tok != "" {
				if viewer, ok := verifier.viewerFromToken(tok); ok {
					r = r.WithContext(WithViewer(r.Context(), viewer))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/medauth/medauth"
)

type tokenInfoContextKey struct{}

// TokenInfoFromContext returns the validated token info injected by Guard.
func TokenInfoFromContext(ctx context.Context) (*medauth.TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoContextKey{}).(*medauth.TokenInfo)
	return info, ok
}

// Guard rejects requests without a bearer token backed by a live session.
// On success the token info is available through TokenInfoFromContext.
func Guard(engine *medauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestMetadata(r.Context(), r)
			info, err := engine.ValidateToken(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, tokenInfoContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is Guard restricted to one role.
func RequireRole(engine *medauth.Engine, role medauth.Role) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := TokenInfoFromContext(r.Context())
			if !ok || info.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// WithRequestMetadata attaches the caller's IP and User-Agent to ctx so
// the engine can rate-limit and audit per client.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	if ip := clientIP(r); ip != "" {
		ctx = medauth.WithClientIP(ctx, ip)
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		ctx = medauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when present, else the peer address.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

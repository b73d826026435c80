package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type identityContextKey struct{}

// ClientIdentity resolves the caller identity (the client IP) and stores it in
// the request context. Mount chi's RealIP in front of it to honour proxy
// headers.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromRemoteAddr(r.RemoteAddr)
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIdentity returns the identity stored by ClientIdentity, or "".
func GetClientIdentity(ctx context.Context) string {
	if identity, ok := ctx.Value(identityContextKey{}).(string); ok {
		return identity
	}
	return ""
}

// identityFromRemoteAddr strips the port. RealIP stores a bare IP, so a value
// without a port is used as-is.
func identityFromRemoteAddr(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.Trim(remoteAddr, "[]")
}

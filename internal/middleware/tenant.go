package middleware

import (
	"context"
	"net"
	"net/http"
	"regexp"
)

// TenantHeaderName carries the tenant identity on widget requests.
const TenantHeaderName = "X-Tenant-ID"

type contextKey int

const (
	tenantIDKey contextKey = iota
	clientIPKey
)

// tenantIDPattern bounds what we accept as a tenant identifier.
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// TenantIDFromContext extracts the tenant ID from the request context.
func TenantIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantIDKey).(string); ok {
		return v
	}
	return ""
}

// ClientIPFromContext extracts the client IP from the request context.
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// Tenant extracts and validates the X-Tenant-ID header and the client IP,
// storing both on the request context. Requests without a valid tenant are
// rejected before they reach any handler; the limiter key depends on both
// values being present.
func Tenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := r.Header.Get(TenantHeaderName)
			if tenantID == "" || !tenantIDPattern.MatchString(tenantID) {
				http.Error(w, `{"error": "missing or invalid tenant id"}`, http.StatusBadRequest)
				return
			}

			ip := clientIP(r)
			ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
			ctx = context.WithValue(ctx, clientIPKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP returns the remote address without the port. chi's RealIP
// middleware has already rewritten RemoteAddr from X-Forwarded-For when the
// request came through a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

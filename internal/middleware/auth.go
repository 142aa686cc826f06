package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"dynaquery/internal/domain"
)

type principalKey struct{}

// WithPrincipal stores the authenticated subject in the context.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, name)
}

// PrincipalFromContext extracts the authenticated subject from the context.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(principalKey{}).(string)
	return name, ok
}

// AuthConfig configures the Authenticate middleware.
type AuthConfig struct {
	// Validators are tried in order; the first that accepts the token wins.
	Validators  []JWTValidator
	TenantClaim string
	// DevTenantHeader, when set and no validators are configured, reads the
	// tenant from this header instead. Development only.
	DevTenantHeader string
	Logger          *slog.Logger
}

// Authenticate resolves the caller's tenant from a Bearer token and stores
// it in the request context. Requests without a usable tenant get 401.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(cfg.Validators) == 0 && cfg.DevTenantHeader != "" {
				tenant, err := domain.ParseTenantID(r.Header.Get(cfg.DevTenantHeader))
				if err != nil {
					writeUnauthorized(w, "unauthorized: "+cfg.DevTenantHeader+" header must carry a tenant id")
					return
				}
				ctx := domain.WithTenant(WithPrincipal(r.Context(), "dev"), tenant)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "unauthorized: provide a valid Bearer token")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			for _, v := range cfg.Validators {
				claims, err := v.Validate(r.Context(), token)
				if err != nil {
					continue
				}
				tenant, err := claims.Tenant(cfg.TenantClaim)
				if err != nil {
					logger.Debug("token rejected", "subject", claims.Subject, "error", err)
					writeUnauthorized(w, "unauthorized: token does not name a tenant")
					return
				}
				ctx := domain.WithTenant(WithPrincipal(r.Context(), claims.Subject), tenant)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			writeUnauthorized(w, "unauthorized: provide a valid Bearer token")
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeProblem(w, http.StatusUnauthorized, msg)
}

// writeProblem writes the {code, message} body the API uses for errors.
func writeProblem(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{status, msg})
}

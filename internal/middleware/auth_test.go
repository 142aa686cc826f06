package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynaquery/internal/domain"
	"dynaquery/internal/testutil"
)

func tenantEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := domain.TenantFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		principal, _ := PrincipalFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]string{
			"tenant":    tenant.String(),
			"principal": principal,
		})
	})
}

func TestAuthenticate_Bearer(t *testing.T) {
	t.Parallel()

	v, err := NewHS256Validator(testSecret, "")
	require.NoError(t, err)
	h := Authenticate(AuthConfig{
		Validators:  []JWTValidator{v},
		TenantClaim: "store_id",
		Logger:      testutil.DiscardLogger(),
	})(tenantEcho())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantTenant string
	}{
		{"valid token", "Bearer " + makeToken(t, testSecret, validClaims(jwt.MapClaims{"store_id": 42})), http.StatusOK, "42"},
		{"string tenant", "Bearer " + makeToken(t, testSecret, validClaims(jwt.MapClaims{"store_id": "9"})), http.StatusOK, "9"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"basic auth", "Basic YWxpY2U6cHc=", http.StatusUnauthorized, ""},
		{"bad signature", "Bearer " + makeToken(t, "nope", validClaims(jwt.MapClaims{"store_id": 42})), http.StatusUnauthorized, ""},
		{"no tenant claim", "Bearer " + makeToken(t, testSecret, validClaims(nil)), http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantTenant, body["tenant"])
				assert.Equal(t, "alice", body["principal"])
			} else {
				assert.InDelta(t, 401, body["code"], 0)
				assert.Contains(t, body["message"], "unauthorized")
			}
		})
	}
}

func TestAuthenticate_TriesValidatorsInOrder(t *testing.T) {
	t.Parallel()

	first, err := NewHS256Validator("first-secret", "")
	require.NoError(t, err)
	second, err := NewHS256Validator(testSecret, "")
	require.NoError(t, err)

	h := Authenticate(AuthConfig{
		Validators:  []JWTValidator{first, second},
		TenantClaim: "store_id",
	})(tenantEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken(t, testSecret, validClaims(jwt.MapClaims{"store_id": 5})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_DevHeader(t *testing.T) {
	t.Parallel()

	h := Authenticate(AuthConfig{DevTenantHeader: "X-Tenant-ID"})(tenantEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "12")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tenant":"12"`)

	for _, bad := range []string{"", "0", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", bad)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", bad)
	}
}

func TestAuthenticate_NoValidatorsRejects(t *testing.T) {
	t.Parallel()

	h := Authenticate(AuthConfig{TenantClaim: "store_id"})(tenantEcho())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken(t, testSecret, validClaims(jwt.MapClaims{"store_id": 1})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

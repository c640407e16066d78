package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tickethub/tickethub/pkg/auth"
	"github.com/tickethub/tickethub/pkg/middleware"
	"github.com/tickethub/tickethub/pkg/rbac"
)

func TestHasRole(t *testing.T) {
	cases := []struct {
		name   string
		claims *auth.Claims
		status int
	}{
		{"admin passes", &auth.Claims{UserID: "u1", Role: "ADMIN"}, http.StatusOK},
		{"user forbidden", &auth.Claims{UserID: "u2", Role: "USER"}, http.StatusForbidden},
		{"lowercase is not admin", &auth.Claims{UserID: "u3", Role: "admin"}, http.StatusForbidden},
		{"no claims", nil, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := rbac.HasRole("ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPatch, "/admin/users/1", nil)
			if tc.claims != nil {
				req = req.WithContext(middleware.WithClaims(req.Context(), tc.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.status == http.StatusOK, called)
		})
	}
}

func TestCheck(t *testing.T) {
	allowed := map[string]bool{"ADMIN": true}
	assert.NoError(t, rbac.Check("ADMIN", allowed))
	assert.ErrorIs(t, rbac.Check("USER", allowed), rbac.ErrUnauthorized)
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth(t *testing.T) {
	svc := newTestService(t, okCall("ok"))
	secret := svc.config.HTTP.AdminJWTSecret

	body := map[string]string{"use_case": "audit-search"}

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(t, svc, "POST", "/api/v1/ai/cache/invalidate", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed token", func(t *testing.T) {
		rec := doRequest(t, svc, "POST", "/api/v1/ai/cache/invalidate", "not-a-jwt", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := doRequest(t, svc, "POST", "/api/v1/ai/cache/invalidate",
			adminToken(t, "other-secret", "admin"), body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"role": "admin",
			"exp":  time.Now().Add(-time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)

		rec := doRequest(t, svc, "POST", "/api/v1/ai/cache/invalidate", signed, body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-admin role", func(t *testing.T) {
		rec := doRequest(t, svc, "POST", "/api/v1/ai/cache/invalidate",
			adminToken(t, secret, "viewer"), body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin role passes", func(t *testing.T) {
		rec := doRequest(t, svc, "POST", "/api/v1/ai/cache/invalidate",
			adminToken(t, secret, "admin"), body)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no secret configured disables admin API", func(t *testing.T) {
		config := testServiceConfig(t)
		config.HTTP.AdminJWTSecret = ""
		bare, err := NewService(config, okCall("ok"))
		require.NoError(t, err)
		t.Cleanup(bare.Close)

		rec := doRequest(t, bare, "POST", "/api/v1/ai/cache/invalidate",
			adminToken(t, secret, "admin"), body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

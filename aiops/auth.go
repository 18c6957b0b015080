// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// adminAuth guards mutating ops endpoints. Tokens are HMAC-signed JWTs
// carrying role=admin; anything else is rejected before the handler runs.
func (s *Service) adminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.HTTP.AdminJWTSecret == "" {
			writeError(w, http.StatusForbidden, "admin API disabled: no admin_jwt_secret configured")
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.parseAdminToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}

		if role, _ := claims["role"].(string); role != "admin" {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}

		next(w, r)
	}
}

func (s *Service) parseAdminToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.config.HTTP.AdminJWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

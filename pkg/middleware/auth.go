package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}

	return false
}

// JWTAuth guards mutating requests with an HS256 bearer token. Read-only
// requests pass through untouched. An empty issuer disables the iss check.
func JWTAuth(secret []byte, issuer string, logger *zap.Logger) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return secret, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				logger.Error("Bearer token not provided.", zap.String("method", r.Method), zap.String("uri", r.RequestURI))
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized: bearer token not provided")

				return
			}

			claims := jwt.MapClaims{}

			_, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, keyFunc)
			if err != nil {
				logger.Error("Failed to validate bearer token.", zap.Error(err))
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized: invalid bearer token")

				return
			}

			if issuer != "" && !claims.VerifyIssuer(issuer, true) {
				logger.Error("Bearer token issued by an unexpected issuer.", zap.Any("iss", claims["iss"]))
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized: invalid bearer token")

				return
			}

			subject, _ := claims["sub"].(string)
			logger.Debug("Successfully authenticated a request.", zap.String("subject", subject))

			next.ServeHTTP(w, r)
		})
	}
}

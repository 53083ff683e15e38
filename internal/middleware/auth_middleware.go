package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	appctx "github.com/techieonvacation/stylopay-sub000/internal/context"
	"github.com/techieonvacation/stylopay-sub000/internal/session"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMiddleware guards routes that require a usable session token
type AuthMiddleware struct {
	validator *session.Validator
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(validator *session.Validator) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
	}
}

// Authenticate validates the session token from the Authorization
// header and injects the subject identity into the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.writeError(w, http.StatusUnauthorized, "SESSION_INVALID", "Invalid authorization header format")
			return
		}

		tokenString := parts[1]
		if tokenString == "" {
			m.writeError(w, http.StatusUnauthorized, "SESSION_INVALID", "Token is empty")
			return
		}

		claims, err := m.validator.Validate(tokenString)
		if err != nil {
			if errors.Is(err, session.ErrTokenExpired) {
				m.writeError(w, http.StatusUnauthorized, "SESSION_EXPIRED", "Session expired")
				return
			}
			m.writeError(w, http.StatusUnauthorized, "SESSION_INVALID", "Invalid session token")
			return
		}

		ctx := context.WithValue(r.Context(), appctx.AccountIDKey, claims.AccountID())
		ctx = context.WithValue(ctx, appctx.EmailKey, claims.Email)
		ctx = context.WithValue(ctx, appctx.RoleKey, string(claims.Role))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeError writes a JSON error response
func (m *AuthMiddleware) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appctx "github.com/techieonvacation/stylopay-sub000/internal/context"
	"github.com/techieonvacation/stylopay-sub000/internal/session"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// Handler handles HTTP requests for the session endpoints
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// Login handles user authentication
// POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "email and password are required", nil)
		return
	}

	response, err := h.service.Login(r.Context(), req, getClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password", nil)
		case errors.Is(err, ErrAccountLocked):
			// Deliberately no retry-after: the generic message must not
			// reveal the lock window.
			h.writeError(w, http.StatusUnauthorized, CodeAccountLocked, "Account temporarily locked. Please try again later.", nil)
		case errors.Is(err, ErrAccountSuspended):
			h.writeError(w, http.StatusForbidden, CodeAccountSuspended, "Account suspended", nil)
		case errors.Is(err, ErrAccountClosed):
			h.writeError(w, http.StatusForbidden, CodeAccountClosed, "Account closed", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// Register handles account creation
// POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	summary, validationErrors, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			h.writeError(w, http.StatusConflict, CodeEmailExists, "An account with this email already exists", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	if len(validationErrors) > 0 {
		details := make(map[string][]string)
		for _, ve := range validationErrors {
			details[ve.Field] = append(details[ve.Field], ve.Message)
		}
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	h.writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"account": summary,
	})
}

// Refresh handles proactive token reissuance
// POST /api/v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenMissing, "Authorization header is required", nil)
		return
	}

	response, err := h.service.Refresh(r.Context(), token, getClientIP(r))
	if err != nil {
		if errors.Is(err, session.ErrReauthenticationRequired) {
			h.writeError(w, http.StatusUnauthorized, CodeReauthRequired, "Session can no longer be refreshed. Please log in again.", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// ValidateToken probes a token's validity. Used for UX probing, so an
// invalid or expired token still answers 200 with a validity flag.
// POST /api/v1/auth/validate-token
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		// Fall back to the Authorization header.
		if token, ok := bearerToken(r); ok {
			req.Token = token
		}
	}
	if req.Token == "" {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "token is required", nil)
		return
	}

	claims, err := h.service.Validate(req.Token)
	if err != nil {
		h.writeSuccess(w, http.StatusOK, map[string]interface{}{
			"valid":  false,
			"reason": validationReason(err),
		})
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"valid":      true,
		"account_id": claims.AccountID(),
		"expires_at": claims.ExpiresAt.Time,
	})
}

// Status describes the current request's session
// GET /api/v1/auth/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenMissing, "Authorization header is required", nil)
		return
	}

	response, err := h.service.Status(token)
	if err != nil {
		if errors.Is(err, session.ErrTokenExpired) {
			h.writeError(w, http.StatusUnauthorized, CodeSessionExpired, "Session expired", nil)
			return
		}
		h.writeError(w, http.StatusUnauthorized, CodeSessionInvalid, "Invalid session token", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// ChangePassword replaces the caller's password
// POST /api/v1/auth/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := appctx.ExtractAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeSessionInvalid, "Invalid or expired session", nil)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "current_password and new_password are required", nil)
		return
	}

	validationErrors, err := h.service.ChangePassword(r.Context(), accountID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password", nil)
		case errors.Is(err, ErrAccountLocked):
			h.writeError(w, http.StatusUnauthorized, CodeAccountLocked, "Account temporarily locked. Please try again later.", nil)
		case errors.Is(err, ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	if len(validationErrors) > 0 {
		details := make(map[string][]string)
		for _, ve := range validationErrors {
			details[ve.Field] = append(details[ve.Field], ve.Message)
		}
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Password changed. Existing sessions expire at their next refresh.",
	})
}

// validationReason maps a validator error onto a stable reason code
func validationReason(err error) string {
	switch {
	case errors.Is(err, session.ErrTokenExpired):
		return "expired"
	case errors.Is(err, session.ErrTokenStructureInvalid):
		return "structure_invalid"
	case errors.Is(err, session.ErrMissingExternalCredential):
		return "missing_external_credential"
	default:
		return "invalid"
	}
}

// bearerToken extracts the token from the Authorization header
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

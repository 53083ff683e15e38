package auth

import "unicode"

// MinPasswordLength is the minimum required password length
const MinPasswordLength = 8

// PasswordValidationError represents a specific password validation failure
type PasswordValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PasswordPolicy checks passwords against the complexity rules
type PasswordPolicy struct{}

// NewPasswordPolicy creates a new PasswordPolicy instance
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{}
}

// Validate checks if a password meets all complexity requirements.
// Returns a list of validation errors, empty if the password is valid.
func (p *PasswordPolicy) Validate(password string) []PasswordValidationError {
	var errors []PasswordValidationError

	if len(password) < MinPasswordLength {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must be at least 8 characters long",
		})
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one uppercase letter",
		})
	}
	if !hasLower {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one lowercase letter",
		})
	}
	if !hasNumber {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one number",
		})
	}
	if !hasSpecial {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one special character",
		})
	}

	return errors
}

// IsValid returns true if the password meets all requirements
func (p *PasswordPolicy) IsValid(password string) bool {
	return len(p.Validate(password)) == 0
}

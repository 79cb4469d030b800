package core

import (
	"crypto/subtle"
	"strings"
)

// minTokenLength is the shortest bearer token accepted for the HTTP API
const minTokenLength = 16

// SecureCompareString performs constant-time string comparison
func SecureCompareString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateAuthToken rejects empty, short and obviously weak tokens
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrInvalidParameter, "Authentication token cannot be empty").
			WithGuidance("Provide a valid authentication token.")
	}

	if len(token) < minTokenLength {
		return NewError(ErrInvalidParameter, "Authentication token is too short").
			WithGuidance("Use a token with at least 16 characters.")
	}

	weakTokens := []string{
		"password", "secret", "token", "admin", "test", "default",
		"12345", "123456", "password123", "secret123", "admin123",
	}

	lowerToken := strings.ToLower(token)
	for _, weak := range weakTokens {
		if strings.Contains(lowerToken, weak) {
			return NewError(ErrInvalidParameter, "Authentication token appears to be weak").
				WithGuidance("Use a randomly generated authentication token.")
		}
	}

	return nil
}

// AuthenticateBearer checks an Authorization header against the expected
// token. It returns a reason when the request is not authorized.
func AuthenticateBearer(authHeader, expectedToken string) (bool, string) {
	if authHeader == "" {
		return false, "Missing Authorization header"
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" {
		return false, "Invalid Authorization header format"
	}

	if !SecureCompareString(token, expectedToken) {
		return false, "Invalid bearer token"
	}

	return true, ""
}

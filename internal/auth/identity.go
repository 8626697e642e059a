package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	userIDPrefix      = "user-"
	anonymousIDPrefix = "anon-"
	bearerPrefix      = "Bearer "
	tokenHashLength   = 8
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// TokenValidator resolves a bearer token to a subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Identifier derives the user identity for a websocket upgrade request.
type Identifier struct {
	validator TokenValidator
}

// NewIdentifier constructs an Identifier. The validator is optional; without
// it bearer tokens fall back to the hashed form.
func NewIdentifier(validator TokenValidator) *Identifier {
	return &Identifier{validator: validator}
}

// DeriveUserID reduces the request to a stable user identifier:
// a valid username query parameter wins, then a bearer token (backend JWT
// subject when it validates, hashed otherwise), then a fresh anonymous id.
func (i *Identifier) DeriveUserID(request *http.Request) string {
	if username := strings.TrimSpace(request.URL.Query().Get("username")); username != "" {
		if usernamePattern.MatchString(username) {
			return userIDPrefix + username
		}
	}

	if token := bearerToken(request.Header.Get("Authorization")); token != "" {
		if i.validator != nil {
			if subject, err := i.validator.ValidateToken(token); err == nil {
				return userIDPrefix + subject
			}
		}
		return userIDPrefix + hashToken(token)
	}

	return anonymousIDPrefix + randomSuffix()
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:tokenHashLength]
}

func randomSuffix() string {
	value := uuid.New()
	return hex.EncodeToString(value[:])[:tokenHashLength]
}

// Package auth turns an inbound HTTP request into a validated caller name.
//
// Two schemes are provided:
//   - pseudo: the caller states its name in the user.name query parameter
//     (simple auth). An anonymous user may be configured for requests that
//     omit it.
//   - token: the caller sends "Authorization: Bearer <user>:<secret>" and the
//     secret is checked against a bcrypt hash from configuration.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthenticated is returned when no valid caller identity can be
// derived from the request.
var ErrUnauthenticated = errors.New("authentication required")

// UserNameParam is the query parameter carrying the caller in pseudo auth.
const UserNameParam = "user.name"

var userNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*[$]?$`)

// ValidUserName reports whether name is an acceptable user or group name.
func ValidUserName(name string) bool {
	return userNamePattern.MatchString(name)
}

// Authenticator extracts the caller from a request.
type Authenticator interface {
	// Authenticate returns the caller name or an error wrapping
	// ErrUnauthenticated.
	Authenticate(r *http.Request) (string, error)

	// Scheme names the mechanism for logs.
	Scheme() string
}

// ============================================================================
// Pseudo
// ============================================================================

// Pseudo trusts the user.name query parameter.
type Pseudo struct {
	anonymous string
}

// NewPseudo creates a pseudo authenticator. An empty anonymousUser rejects
// requests without user.name.
func NewPseudo(anonymousUser string) (*Pseudo, error) {
	if anonymousUser != "" && !ValidUserName(anonymousUser) {
		return nil, fmt.Errorf("invalid anonymous user name %q", anonymousUser)
	}
	return &Pseudo{anonymous: anonymousUser}, nil
}

func (p *Pseudo) Authenticate(r *http.Request) (string, error) {
	name := r.URL.Query().Get(UserNameParam)
	if name == "" {
		if p.anonymous == "" {
			return "", fmt.Errorf("%w: missing %s parameter", ErrUnauthenticated, UserNameParam)
		}
		return p.anonymous, nil
	}
	if !ValidUserName(name) {
		return "", fmt.Errorf("%w: invalid user name %q", ErrUnauthenticated, name)
	}
	return name, nil
}

func (p *Pseudo) Scheme() string { return "pseudo" }

// ============================================================================
// Token
// ============================================================================

// Token checks bearer secrets against per-user bcrypt hashes.
type Token struct {
	hashes map[string][]byte
}

// NewToken builds a token authenticator from a user -> bcrypt hash map.
//
// Every hash is checked to be a well-formed bcrypt hash up front so that a
// typo in configuration fails at startup rather than on first login.
func NewToken(hashes map[string]string) (*Token, error) {
	if len(hashes) == 0 {
		return nil, errors.New("token auth requires at least one user")
	}

	t := &Token{hashes: make(map[string][]byte, len(hashes))}
	for user, hash := range hashes {
		if !ValidUserName(user) {
			return nil, fmt.Errorf("invalid user name %q", user)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid bcrypt hash for user %q: %w", user, err)
		}
		t.hashes[user] = []byte(hash)
	}
	return t, nil
}

func (t *Token) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", ErrUnauthenticated)
	}

	scheme, credential, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: expected bearer token", ErrUnauthenticated)
	}

	user, secret, ok := strings.Cut(strings.TrimSpace(credential), ":")
	if !ok || user == "" || secret == "" {
		return "", fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	}

	hash, known := t.hashes[user]
	if !known {
		return "", fmt.Errorf("%w: unknown user %q", ErrUnauthenticated, user)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return "", fmt.Errorf("%w: bad credentials for %q", ErrUnauthenticated, user)
	}
	return user, nil
}

func (t *Token) Scheme() string { return "token" }

// HashSecret produces a bcrypt hash suitable for the token configuration.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// Package auth stands in for the portal's credential service: it resolves
// bearer tokens to users and decides which callers carry the internal
// capability that gates the control-panel endpoints.
package auth

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// User is the resolved caller identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Resolver turns an access token into a user. The zero result with ok=false
// means the token does not belong to a live session.
type Resolver interface {
	Resolve(token string) (User, bool)
}

// Sessions is an in-memory token store. Tokens are opaque uuids issued at
// sign-in and dropped at sign-out.
type Sessions struct {
	mu     sync.Mutex
	tokens map[string]User
}

func NewSessions() *Sessions {
	return &Sessions{tokens: make(map[string]User)}
}

// Issue creates a session for the user and returns its token.
func (s *Sessions) Issue(u User) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.tokens[token] = u
	return token
}

// Resolve looks up the user behind a token.
func (s *Sessions) Resolve(token string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.tokens[token]
	return u, ok
}

// Revoke drops a session, if it exists.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// StaticTokens resolves a fixed token set loaded from configuration; it
// stands in for the external credential service in deployments and tests.
type StaticTokens map[string]User

func (s StaticTokens) Resolve(token string) (User, bool) {
	u, ok := s[token]
	return u, ok
}

// InternalChecker decides whether a user counts as internal staff: the role
// metadata says so, or the email sits on the configured allow-list. The
// allow-list is injected at construction, never read from the environment at
// check time.
type InternalChecker struct {
	emails map[string]struct{}
}

func NewInternalChecker(allowedEmails []string) *InternalChecker {
	emails := make(map[string]struct{}, len(allowedEmails))
	for _, e := range allowedEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			emails[e] = struct{}{}
		}
	}
	return &InternalChecker{emails: emails}
}

// IsInternal reports whether the user carries the internal capability.
func (c *InternalChecker) IsInternal(u User) bool {
	if u.Role == "internal" || u.Role == "admin" {
		return true
	}
	if u.Email == "" {
		return false
	}
	_, ok := c.emails[strings.ToLower(u.Email)]
	return ok
}

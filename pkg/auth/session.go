package auth

import (
	"sync"
)

// User is the authenticated account as held client-side.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	Role     string `json:"role"`
}

// Session is the single owner of the token pair. Collaborators (HTTP client,
// hub connection) read the current token each time they need one and never
// keep their own copy.
type Session struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *User
}

// NewSession creates an empty, unauthenticated session.
func NewSession() *Session {
	return &Session{}
}

// Login installs a fresh token pair and user after login or register.
func (s *Session) Login(accessToken string, user User, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = accessToken
	s.refreshToken = refreshToken
	u := user
	s.user = &u
}

// Logout clears all credentials. Called on explicit logout and on
// irrecoverable refresh failure.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
}

// SetToken replaces the access token only, after a refresh.
func (s *Session) SetToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
}

// SetRefreshToken replaces the refresh token when the refresh endpoint
// rotates it.
func (s *Session) SetRefreshToken(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshToken = refreshToken
}

// Token returns the current access token, empty when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// User returns the logged-in user, false when unauthenticated.
func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken != ""
}

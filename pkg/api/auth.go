package api

import (
	"context"
	"net/http"

	"github.com/ondelive/onde/pkg/auth"
)

// AuthService wraps the auth endpoints and keeps the session in step with
// their responses.
type AuthService struct {
	c *Client
}

// Auth returns the auth service.
func (c *Client) Auth() *AuthService {
	return &AuthService{c: c}
}

// LoginRequest are the login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the account creation payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates and installs the normalized result in the session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (auth.Result, error) {
	raw, err := s.c.DoRaw(ctx, http.MethodPost, "/auth/login", mustJSON(req))
	if err != nil {
		return auth.Result{}, err
	}

	res := auth.NormalizeResponse(raw)
	s.c.session.Login(res.Token, res.User, res.RefreshToken)
	return res, nil
}

// Register creates an account and installs the normalized result in the
// session.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (auth.Result, error) {
	raw, err := s.c.DoRaw(ctx, http.MethodPost, "/auth/register", mustJSON(req))
	if err != nil {
		return auth.Result{}, err
	}

	res := auth.NormalizeResponse(raw)
	s.c.session.Login(res.Token, res.User, res.RefreshToken)
	return res, nil
}

// Logout clears the session. Purely local; the backend holds no server-side
// session for this client.
func (s *AuthService) Logout() {
	s.c.session.Logout()
}

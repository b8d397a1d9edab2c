// Package hubsim is an in-process simulation of the platform backend: the
// REST API, the push hub and the live-chat socket. It backs the demo
// command and local development when the real backend is unreachable.
package hubsim

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/api"
	"github.com/ondelive/onde/pkg/chat"
	"github.com/rs/xid"
)

// Options configures the simulator.
type Options struct {
	// JWTSecret signs the minted access tokens.
	JWTSecret string

	// TokenTTL is the lifetime of minted access tokens.
	TokenTTL time.Duration

	Logger *logging.Logger
}

// Simulator holds the whole simulated backend state.
type Simulator struct {
	logger *logging.Logger
	secret []byte
	ttl    time.Duration

	mu            sync.Mutex
	refreshTokens map[string]string
	stations      []station
	selected      int
	trackIndex    map[int]int
	playedAt      map[int]time.Time
	listeners     int
	messages      map[string][]chat.Message
	comments      map[string][]api.Comment

	hubConns    map[*hubConn]struct{}
	socketRooms map[string]map[*socketConn]struct{}
}

// New creates a simulator with seeded stations and tracks.
func New(opts Options) *Simulator {
	if opts.Logger == nil {
		opts.Logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "hubsim-dev-secret"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 15 * time.Minute
	}

	s := &Simulator{
		logger:        opts.Logger.WithFields(map[string]any{"component": "hubsim"}),
		secret:        []byte(opts.JWTSecret),
		ttl:           opts.TokenTTL,
		refreshTokens: make(map[string]string),
		stations:      seedStations(),
		selected:      1,
		trackIndex:    make(map[int]int),
		playedAt:      make(map[int]time.Time),
		listeners:     3,
		messages:      make(map[string][]chat.Message),
		comments:      make(map[string][]api.Comment),
		hubConns:      make(map[*hubConn]struct{}),
		socketRooms:   make(map[string]map[*socketConn]struct{}),
	}

	now := time.Now()
	for _, st := range s.stations {
		s.playedAt[st.id] = now
	}
	return s
}

// Handler returns the full HTTP surface of the simulated backend.
func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/refresh-token", s.handleRefresh)

		r.Get("/radio/Stations", s.handleStations)
		r.Get("/radio/LiveStream", s.handleLiveStreams)
		r.Post("/radio/selectStation/{id}", s.handleSelectStation)

		r.Get("/chat/{liveID}/messages", s.handleChatHistory)
		r.Post("/chat/{liveID}", s.handleChatSend)
		r.Delete("/chat/messages/{id}", s.handleChatDelete)

		r.Get("/media", s.handleMediaList)
		r.Get("/media/{id}", s.handleMediaGet)
		r.Get("/comments/{mediaID}", s.handleComments)
		r.Post("/comments", s.handleAddComment)
	})

	r.Get("/hubs/livehub", s.serveHub)
	r.Get("/socket", s.serveSocket)

	return r
}

var upgrader = websocket.Upgrader{}

// withLogger injects the simulator logger into the request context.
func (s *Simulator) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), s.logger)))
	})
}

// mintToken signs a short-lived access token for a user.
func (s *Simulator) mintToken(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub":                xid.New().String(),
		"preferred_username": username,
		"exp":                time.Now().Add(s.ttl).Unix(),
		"iat":                time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// verifyToken checks a minted token and returns its username.
func (s *Simulator) verifyToken(token string) (string, bool) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	username, _ := claims["preferred_username"].(string)
	return username, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func (s *Simulator) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	username := body.Email
	if i := strings.IndexByte(username, '@'); i > 0 {
		username = username[:i]
	}

	logging.FromContext(r.Context()).Info("login", "username", username)
	s.issueSession(w, username, body.Email)
}

func (s *Simulator) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	s.issueSession(w, body.Username, body.Email)
}

func (s *Simulator) issueSession(w http.ResponseWriter, username, email string) {
	token, err := s.mintToken(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}

	refresh := xid.New().String()
	s.mu.Lock()
	s.refreshTokens[refresh] = username
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"token":        token,
		"refreshToken": refresh,
		"user": map[string]any{
			"id":       xid.New().String(),
			"username": username,
			"email":    email,
			"role":     "User",
		},
	})
}

func (s *Simulator) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	username, ok := s.refreshTokens[body.RefreshToken]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown refresh token")
		return
	}

	token, err := s.mintToken(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

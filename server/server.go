// Package server exposes the assistant over HTTP: a JSON login endpoint
// that issues JWTs and a websocket endpoint that streams answers.
//
// The role used for retrieval always comes from the verified token,
// never from anything the websocket client sends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/campus-genai/campusrag/internal/logger"
	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/assistant"
	"github.com/campus-genai/campusrag/pkg/auth"
	"github.com/campus-genai/campusrag/pkg/rbac"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the websocket envelope in both directions. Clients send
// "ask", "clear" and "info"; the server replies with "stream", "done",
// "info" and "error".
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Authenticator verifies login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (models.User, error)
}

// Assistant answers questions for authenticated users.
type Assistant interface {
	AskStream(ctx context.Context, user models.User, question string, history []models.Exchange, fn func(chunk string) error) (assistant.Answer, error)
	History(ctx context.Context, user models.User) ([]models.Exchange, error)
	Access(ctx context.Context, role rbac.Role) (map[rbac.Role]int64, error)
}

// Config holds the server settings.
type Config struct {
	Addr      string
	JWTSecret string
	TokenTTL  time.Duration
}

// Server serves login and chat for the portal.
type Server struct {
	config    Config
	auth      Authenticator
	assistant Assistant
	log       *logger.Logger
}

// New creates a server from injected dependencies. The JWT secret is
// required; tokens signed with a guessable secret would let anyone
// mint themselves a dean.
func New(config Config, authn Authenticator, asst Assistant, log *logger.Logger) (*Server, error) {
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 12 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{config: config, auth: authn, assistant: asst, log: log}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.config.Addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("server listening", "addr", s.config.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.auth.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		s.log.Error("authentication failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		s.log.Error("failed to issue token", "username", user.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.log.Info("user logged in", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		Username: user.Username,
		Role:     string(user.Role),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.verifyToken(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.log.Info("websocket session started", "username", user.Username, "role", user.Role)
	s.session(r.Context(), conn, user)
}

// session runs one authenticated chat connection. Questions are
// answered sequentially; gorilla/websocket allows only one concurrent
// writer per connection anyway.
func (s *Server) session(ctx context.Context, conn *websocket.Conn, user models.User) {
	history, err := s.assistant.History(ctx, user)
	if err != nil {
		s.log.Warn("failed to load chat history", "username", user.Username, "error", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", "username", user.Username, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(conn, Message{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ask":
			history = s.handleAsk(ctx, conn, user, history, msg.Content)
		case "clear":
			history = nil
			s.send(conn, Message{Type: "info", Content: "Conversation history cleared."})
		case "info":
			s.handleInfo(ctx, conn, user)
		default:
			s.send(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (s *Server) handleAsk(ctx context.Context, conn *websocket.Conn, user models.User, history []models.Exchange, question string) []models.Exchange {
	answer, err := s.assistant.AskStream(ctx, user, question, history, func(chunk string) error {
		return s.send(conn, Message{Type: "stream", Content: chunk})
	})
	if err != nil {
		s.log.Error("ask failed", "username", user.Username, "error", err)
		s.send(conn, Message{Type: "error", Content: "failed to answer, please try again"})
		return history
	}

	s.send(conn, Message{Type: "done", Data: map[string]interface{}{"sources": answer.Sources}})
	return append(history, models.Exchange{
		UserID:   user.ID,
		Question: question,
		Answer:   answer.Text,
	})
}

func (s *Server) handleInfo(ctx context.Context, conn *websocket.Conn, user models.User) {
	counts, err := s.assistant.Access(ctx, user.Role)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: "failed to load access info"})
		return
	}

	accessible := make(map[string]int64, len(counts))
	for role, n := range counts {
		accessible[string(role)] = n
	}
	s.send(conn, Message{
		Type:    "info",
		Content: fmt.Sprintf("Role: %s. Access: %s", user.Role, rbac.Description(user.Role)),
		Data:    map[string]interface{}{"role": string(user.Role), "accessible": accessible},
	})
}

func (s *Server) send(conn *websocket.Conn, msg Message) error {
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("failed to send websocket message", "error", err)
		return err
	}
	return nil
}

type claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(user models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
		},
	})
	return token.SignedString([]byte(s.config.JWTSecret))
}

func (s *Server) verifyToken(raw string) (models.User, error) {
	if raw == "" {
		return models.User{}, fmt.Errorf("missing token")
	}

	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return models.User{}, fmt.Errorf("failed to parse token: %v", err)
	}
	if !token.Valid {
		return models.User{}, fmt.Errorf("invalid token")
	}

	role, err := rbac.Parse(c.Role)
	if err != nil {
		return models.User{}, err
	}
	return models.User{ID: c.Subject, Username: c.Username, Role: role}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

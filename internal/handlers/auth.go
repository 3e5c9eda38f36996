package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/presskit-builder/apiserver/internal/auth"
	"github.com/presskit-builder/apiserver/internal/logging"
	"github.com/presskit-builder/apiserver/internal/services"
	"github.com/presskit-builder/apiserver/internal/store"
	"github.com/presskit-builder/apiserver/types"
)

const defaultTokenTTL = time.Hour

// dummyPassword is hashed once so that logins for unknown emails still pay
// for a bcrypt comparison.
const dummyPassword = "presskit-login-timing-guard"

// AuthHandler provides registration, login and session endpoints.
type AuthHandler struct {
	userService *services.UserService
	hasher      auth.PasswordHasher
	tokens      *auth.TokenService
	logger      *slog.Logger
	tokenTTL    time.Duration
	dummyHash   string
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	userService *services.UserService,
	hasher auth.PasswordHasher,
	tokens *auth.TokenService,
	logger *slog.Logger,
) (*AuthHandler, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &AuthHandler{
		userService: userService,
		hasher:      hasher,
		tokens:      tokens,
		logger:      logger,
		tokenTTL:    defaultTokenTTL,
		dummyHash:   dummyHash,
	}, nil
}

// AuthRouter registers auth routes on the given router. Logout is only
// mounted when the token service can revoke tokens.
func AuthRouter(r chi.Router, handler *AuthHandler, v *Validator, authMiddleware func(http.Handler) http.Handler) {
	r.With(Validate[RegisterRequest](v)).Post("/register", handler.Register)
	r.With(Validate[LoginRequest](v)).Post("/login", handler.Login)
	r.With(authMiddleware).Get("/user", handler.User)
	if handler.tokens.CanRevoke() {
		r.With(authMiddleware).Post("/logout", handler.Logout)
	}
}

// Register creates a new user account and returns a session token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := bodyFromContext[RegisterRequest](r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	hashed, err := h.hasher.Hash(req.Password)
	if err != nil {
		writeServerError(w, r, h.logger, "hash password", err)
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		writeServerError(w, r, h.logger, "create user", err)
		return
	}

	token, err := h.tokens.Issue(user.ID, h.tokenTTL)
	if err != nil {
		writeServerError(w, r, h.logger, "issue token", err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user.Summary()})
}

// Login verifies credentials and returns a session token. Unknown emails and
// wrong passwords get the same response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := bodyFromContext[LoginRequest](r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	password := *req.Password

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, _ = h.hasher.Verify(password, h.dummyHash)
			writeError(w, http.StatusBadRequest, "invalid credentials")
			return
		}
		writeServerError(w, r, h.logger, "load user", err)
		return
	}

	match, err := h.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		writeServerError(w, r, h.logger, "verify password", err)
		return
	}
	if !match {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID, h.tokenTTL)
	if err != nil {
		writeServerError(w, r, h.logger, "issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user.Summary()})
}

// User returns the authenticated user's profile.
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authDenied)
		return
	}

	user, err := h.userService.GetByID(r.Context(), identity.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeServerError(w, r, h.logger, "load user", err)
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

// Logout revokes the token used for this request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authDenied)
		return
	}

	if err := h.tokens.Revoke(r.Context(), identity); err != nil {
		writeServerError(w, r, h.logger, "revoke token", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required" msg:"Name is required"`
	Email    string `json:"email" validate:"required,email" msg:"Please include a valid email"`
	Password string `json:"password" validate:"min=8,maxbytes=72" msg:"Password must be at least 8 characters" msg_maxbytes:"Password must be at most 72 characters"`
}

func (req *RegisterRequest) Normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
}

type LoginRequest struct {
	Email    string  `json:"email" validate:"required,email" msg:"Please include a valid email"`
	Password *string `json:"password" validate:"required" msg:"Password is required"`
}

func (req *LoginRequest) Normalize() {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
}

type AuthResponse struct {
	Token string            `json:"token"`
	User  types.UserSummary `json:"user"`
}

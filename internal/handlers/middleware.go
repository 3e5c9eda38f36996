package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/presskit-builder/apiserver/internal/auth"
	"github.com/presskit-builder/apiserver/internal/logging"
)

// AuthHeader carries the raw session token.
const AuthHeader = "x-auth-token"

const authDenied = "authorization denied"

// RequireAuth verifies the session token and binds the caller's identity to
// the request context. Every authentication failure gets the same response.
func RequireAuth(tokens *auth.TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(AuthHeader))
			if token == "" {
				writeError(w, http.StatusUnauthorized, authDenied)
				return
			}

			identity, err := tokens.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, authDenied)
					return
				}
				writeServerError(w, r, logger, "verify token", err)
				return
			}

			ctx := context.WithValue(r.Context(), contextIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recoverer turns a handler panic into a JSON 500.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

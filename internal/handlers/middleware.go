package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/prudhvinik1/possync/internal/services"
	"github.com/prudhvinik1/possync/internal/utils"
	"golang.org/x/exp/slog"
)

const WebhookSecretHeader = "X-Webhook-Secret"

type contextKey string

const dispatcherKey contextKey = "dispatcher"

// DispatcherFromContext returns the subject of the verified dispatcher token.
func DispatcherFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(dispatcherKey).(string)
	return subject, ok
}

// RequireDispatcherToken rejects requests without a valid bearer token.
func RequireDispatcherToken(auth *services.DispatcherAuth, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
				return
			}
			claims, err := auth.VerifyToken(token)
			if err != nil {
				log.Warn("rejected dispatcher token", slog.String("path", r.URL.Path))
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
				return
			}
			ctx := context.WithValue(r.Context(), dispatcherKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireWebhookSecret compares the X-Webhook-Secret header against a bcrypt hash.
func RequireWebhookSecret(hash string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get(WebhookSecretHeader)
			if secret == "" || !utils.CheckSecret(hash, secret) {
				log.Warn("rejected webhook secret", slog.String("path", r.URL.Path))
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid webhook secret"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

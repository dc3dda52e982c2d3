package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scholara/account-service/internal/token"
)

type userIDKey struct{}
type rolesKey struct{}

// UserID returns the authenticated identity id stored by RequireAuth.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// Roles returns the authenticated identity's roles.
func Roles(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey{}).([]string)
	return roles
}

// RequireAuth checks for a valid bearer credential and stores the subject id
// and roles in the request context.
func RequireAuth(logger *zap.SugaredLogger, tokens *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				logger.Warn("no authorization header provided")
				unauthenticated(w)
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == "" || tokenString == header {
				logger.Warn("malformed bearer token")
				unauthenticated(w)
				return
			}

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				logger.Warnw("invalid token", "error", err)
				unauthenticated(w)
				return
			}
			id, err := claims.SubjectID()
			if err != nil {
				logger.Warnw("invalid token subject", "error", err)
				unauthenticated(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, id)
			ctx = context.WithValue(ctx, rolesKey{}, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unauthenticated"})
}

package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/huddlechat/huddle/types"
)

type contextKey string

const userContextKey contextKey = "user"

// requireAuth validates the bearer token and loads the account it was
// issued for into the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		userId, err := s.issuer.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}
		user, err := s.store.GetUser(userId)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

// requestUser returns the account requireAuth stored in the context.
func requestUser(r *http.Request) *types.User {
	user, _ := r.Context().Value(userContextKey).(*types.User)
	return user
}

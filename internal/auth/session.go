package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const sessionKey contextKey = "session"

type User struct {
	Id    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type Session struct {
	User User `json:"user"`
}

func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// FromContext returns the caller's session, or nil if the request carried no
// valid token.
func FromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey).(*Session)
	if session == nil || session.User.Id == uuid.Nil {
		return nil
	}
	return session
}

// Middleware resolves a bearer token into a session. Requests without a valid
// token pass through unauthenticated, handlers decide whether that's an error.
func Middleware(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				slog.Warn("malformed authorization header")
				next.ServeHTTP(w, r)
				return
			}

			claims, err := issuer.ParseToken(strings.TrimSpace(token))
			if err != nil {
				slog.Warn("rejected access token", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			session := &Session{User: User{Id: claims.UserId, Email: claims.Email}}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

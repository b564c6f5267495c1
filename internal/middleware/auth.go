package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"event-checkout/internal/models"
	"event-checkout/internal/services"
)

type contextKey string

const (
	UserContextKey contextKey = "user"

	// SessionName is the cookie carrying browser sessions.
	SessionName = "session"
)

// Authenticator resolves the caller from a Bearer token or, for browser
// clients, the session cookie.
type Authenticator struct {
	secret []byte
	store  sessions.Store
	users  services.UserServiceInterface
	log    *zap.Logger
}

// NewAuthenticator creates the auth middleware. store may be nil to accept
// tokens only.
func NewAuthenticator(secret string, store sessions.Store, users services.UserServiceInterface, log *zap.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		store:  store,
		users:  users,
		log:    log.Named("auth"),
	}
}

// LoadUser puts the current user in the request context when one can be
// resolved. Requests without credentials pass through untouched.
func (a *Authenticator) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.subject(r)
		if err != nil {
			a.log.Debug("ignoring credentials", zap.Error(err))
		}
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.users.GetUser(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, models.ErrUserNotFound) {
				a.log.Error("failed to load user", zap.String("user_id", userID), zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests LoadUser could not attach a user to.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) subject(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", errors.New("authorization header is not a bearer token")
		}
		return a.ParseToken(strings.TrimSpace(token))
	}

	if a.store == nil {
		return "", nil
	}
	session, err := a.store.Get(r, SessionName)
	if err != nil {
		return "", fmt.Errorf("invalid session: %w", err)
	}
	userID, _ := session.Values["user_id"].(string)
	return userID, nil
}

// ParseToken validates an HS256 token and returns its subject.
func (a *Authenticator) ParseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("invalid token: missing subject")
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID valid for ttl.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(secret))
}

// GetUserFromContext retrieves the user from request context
func GetUserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(UserContextKey).(*models.User)
	return user
}

package middleware

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const sessionMaxAge = 86400 * 30

// NewSessionStore returns the cookie store LoadUser reads the session user from.
// SameSite=Lax keeps the cookie off cross-site POSTs, which is what protects the
// cookie-authenticated cart mutations.
func NewSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

package pkg

import (
	"net/http"
	"time"
)

const (
	SessionCookieName = "user_session"
	sessionCookieTTL  = 24 * time.Hour
)

func NewSessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionID - the session cookie value, empty when there is none.
func SessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}

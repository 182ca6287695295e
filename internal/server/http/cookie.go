package httpserver

import (
	"net/http"
	"strings"
	"time"
)

// DefaultCookieName carries the session token.
const DefaultCookieName = "ips_token"

// setTokenCookie stores tok in an HTTP-only cookie. No Max-Age is set: the
// token carries its own expiry.
func (s *Server) setTokenCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenFromRequest prefers the cookie, then an Authorization bearer token.
func (s *Server) tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(s.opts.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

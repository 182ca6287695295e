// Package httpserver binds the auth operations to JSON endpoints.
package httpserver

import (
	"net/http"

	"github.com/and161185/ips-auth/internal/service"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Options configures the HTTP binding.
type Options struct {
	CookieName     string
	CookieSecure   bool
	AllowedOrigins []string // empty reflects any origin
	Backend        string   // reported by /healthz
}

// Server holds the handlers and their dependencies.
type Server struct {
	auth service.AuthService
	log  *zap.Logger
	opts Options
}

// New constructs the HTTP binding over auth.
func New(auth service.AuthService, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &Server{auth: auth, log: log, opts: opts}
}

// Routes returns the full handler chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signup", s.only(http.MethodPost, s.handleSignup))
	mux.HandleFunc("/api/auth/login", s.only(http.MethodPost, s.handleLogin))
	mux.HandleFunc("/api/auth/logout", s.only(http.MethodPost, s.handleLogout))
	mux.Handle("/api/auth/me", s.only(http.MethodGet, s.authenticated(s.handleMe)))
	mux.HandleFunc("/healthz", s.only(http.MethodGet, s.handleHealth))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return Logging(s.log)(Recover(s.log)(CORS(s.opts.AllowedOrigins)(mux)))
}

// only rejects every method other than method with 405.
func (s *Server) only(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

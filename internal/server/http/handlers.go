package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/and161185/ips-auth/internal/errs"
	"github.com/and161185/ips-auth/internal/model"
	"github.com/and161185/ips-auth/internal/service"
	"go.uber.org/zap"
)

type signupRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type identityResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

type meResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toIdentityResponse(id model.Identity) identityResponse {
	return identityResponse{ID: id.ID, Username: id.Username, Role: string(id.Role), DisplayName: id.DisplayName}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !s.decode(w, r, &req) {
		return
	}
	tok, id, err := s.auth.Signup(r.Context(), service.SignupInput{
		Username:    req.Username,
		Password:    req.Password,
		Role:        model.Role(strings.TrimSpace(req.Role)),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "invalid credentials")
		return
	}
	s.setTokenCookie(w, tok.AccessToken)
	writeJSON(w, http.StatusCreated, toIdentityResponse(id))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	tok, id, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err, "invalid credentials")
		return
	}
	s.setTokenCookie(w, tok.AccessToken)
	writeJSON(w, http.StatusOK, toIdentityResponse(id))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(r.Context(), s.tokenFromRequest(r))
	s.clearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{ID: id.ID, Username: id.Username, Role: string(id.Role)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.opts.Backend})
}

// authenticated verifies the request token and stores the identity in the context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.auth.WhoAmI(r.Context(), s.tokenFromRequest(r))
		if err != nil {
			s.writeServiceError(w, r, err, "unauthorized")
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// decode reads a JSON body of at most maxBodyBytes into dst.
// Unknown fields are ignored so dashboard clients can send extra keys.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps service sentinels onto status codes.
// unauthorizedMsg is the message shown for errs.ErrUnauthorized.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, unauthorizedMsg string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "username already exists")
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, unauthorizedMsg)
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), errs.ErrValidation.Error()+": ")
	if msg == "" || msg == errs.ErrValidation.Error() {
		return "invalid request"
	}
	return msg
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

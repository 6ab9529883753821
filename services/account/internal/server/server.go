package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"bookbazaar/internal/ratelimit"
	"bookbazaar/internal/servicetoken"
	"bookbazaar/internal/util"
	"bookbazaar/pkg/auth"
	"bookbazaar/pkg/domain"
	"bookbazaar/services/account/internal/app"
)

const maxUploadBytes = 5 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Limiter throttles signin/signup per client IP. Nil disables limiting.
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the account HTTP endpoints.
type Server struct {
	app     *app.App
	limiter *ratelimit.FixedWindowLimiter
	trusted *util.TrustedProxies
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:     cfg.App,
		limiter: cfg.Limiter,
		trusted: cfg.TrustedProxies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("account", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/signin", s.rateLimited(s.handleSignIn))
	s.mux.HandleFunc("/auth/signup", s.rateLimited(s.handleSignUp))
	s.mux.Handle("/auth/me", s.withUser(s.handleMe))
	s.mux.HandleFunc("/auth/signout", s.handleSignOut)
	s.mux.Handle("/users", s.withUser(s.handleListUsers))
	s.mux.HandleFunc("/users/", s.handleUserByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r, s.trusted)) {
			writeMessage(w, http.StatusTooManyRequests, "too many attempts, retry later")
			return
		}
		next(w, r)
	}
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		user, err := s.app.UserFromToken(token)
		if err != nil {
			if !errors.Is(err, app.ErrUnauthenticated) {
				util.LoggerFromContext(r.Context()).Error("session lookup failed", "err", err)
			}
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, user)
	})
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signInRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}
	user, token, err := s.app.SignIn(req.Email, req.Password)
	if err != nil {
		writeAccountError(w, err)
		return
	}
	writeTokenResponse(w, http.StatusOK, "Signed in successfully", user, token)
}

type signUpRequest struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	form, image, ok := parseProfileForm(w, r)
	if !ok {
		return
	}
	req := signUpRequest{
		Name:     form.value("name"),
		Email:    form.value("email"),
		Password: form.value("password"),
	}
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}
	user, token, err := s.app.SignUp(app.SignUpInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		ProfileImage: image,
	})
	if err != nil {
		writeAccountError(w, err)
		return
	}
	writeTokenResponse(w, http.StatusCreated, "Account created successfully", user, token)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Authenticated user",
		"user":    user,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := servicetoken.BearerToken(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := s.app.SignOut(token); err != nil {
		writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out successfully"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListUsers(user)
	if err != nil {
		writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "List of all users",
		"users":   users,
	})
}

// /users/{id}, /users/{id}/profile-image
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/users/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "profile-image" {
			writeMessage(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		s.withUser(func(w http.ResponseWriter, r *http.Request, caller domain.User) {
			user, err := s.app.DeleteProfileImage(caller, id)
			if err != nil {
				writeAccountError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "Profile image removed",
				"user":    user,
			})
		}).ServeHTTP(w, r)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		s.withUser(func(w http.ResponseWriter, r *http.Request, caller domain.User) {
			s.handleUpdateUser(w, r, caller, id)
		}).ServeHTTP(w, r)
	case http.MethodDelete:
		s.withUser(func(w http.ResponseWriter, r *http.Request, caller domain.User) {
			if err := s.app.DeleteUser(caller, id); err != nil {
				writeAccountError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, caller domain.User, id string) {
	form, image, ok := parseProfileForm(w, r)
	if !ok {
		return
	}
	in := app.UpdateProfileInput{ProfileImage: image}
	if v, set := form.lookup("name"); set {
		if v == "" {
			writeMessage(w, http.StatusUnprocessableEntity, "name must not be empty")
			return
		}
		in.Name = &v
	}
	if v, set := form.lookup("email"); set {
		if err := validate.Var(v, "required,email"); err != nil {
			writeMessage(w, http.StatusUnprocessableEntity, "email must be valid")
			return
		}
		in.Email = &v
	}
	if v, set := form.lookup("password"); set {
		in.Password = &v
	}
	user, err := s.app.UpdateProfile(caller, id, in)
	if err != nil {
		writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

// form helpers

type profileForm struct {
	values map[string][]string
}

func (f profileForm) value(name string) string {
	if vs := f.values[name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func (f profileForm) lookup(name string) (string, bool) {
	vs, ok := f.values[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return strings.TrimSpace(vs[0]), true
}

// parseProfileForm accepts multipart (with optional profile_image file)
// or urlencoded bodies. Reports false after writing an error response.
func parseProfileForm(w http.ResponseWriter, r *http.Request) (profileForm, *app.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid form data")
			return profileForm{}, nil, false
		}
		form := profileForm{values: r.MultipartForm.Value}
		file, header, err := r.FormFile("profile_image")
		if err != nil {
			// absent file means no image change
			return form, nil, true
		}
		return form, &app.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		}, true
	}
	if err := r.ParseForm(); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid form data")
		return profileForm{}, nil, false
	}
	return profileForm{values: r.PostForm}, nil, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		switch verrs[0].Tag() {
		case "required":
			return field + " is required"
		case "email":
			return field + " must be valid"
		}
		return field + " is invalid"
	}
	return "invalid input"
}

func writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, app.ErrUnauthenticated):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, app.ErrPermissionDenied):
		writeMessage(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, app.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
	case errors.Is(err, app.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, "Email already in use")
	case errors.Is(err, auth.ErrPasswordTooShort):
		writeMessage(w, http.StatusUnprocessableEntity, auth.ErrPasswordTooShort.Error())
	default:
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeTokenResponse(w http.ResponseWriter, status int, message string, user domain.User, token string) {
	writeJSON(w, status, map[string]any{
		"message":      message,
		"access_token": token,
		"token_type":   "Bearer",
		"user":         user,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

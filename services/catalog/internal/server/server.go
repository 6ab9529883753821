package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"bookbazaar/internal/servicetoken"
	"bookbazaar/internal/util"
	"bookbazaar/pkg/domain"
	"bookbazaar/services/catalog/internal/accountclient"
	"bookbazaar/services/catalog/internal/app"
)

const maxUploadBytes = 10 << 20 // covers are images, 10 MiB is plenty

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                   *app.App
	Account               *accountclient.Client
	InternalTokenSecret   string
	InternalTokenIssuers  []string
	InternalTokenAudience string
}

// Server exposes the catalog HTTP endpoints.
type Server struct {
	app            *app.App
	account        *accountclient.Client
	internalVerify *servicetoken.Verifier
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	audience := cfg.InternalTokenAudience
	if audience == "" {
		audience = "catalog"
	}
	issuers := cfg.InternalTokenIssuers
	if len(issuers) == 0 {
		issuers = []string{"account-service"}
	}
	verifier, err := servicetoken.NewVerifier(cfg.InternalTokenSecret, audience, issuers)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		account:        cfg.Account,
		internalVerify: verifier,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("catalog", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// public catalog
	s.mux.HandleFunc("/books/public", s.handleListPublic)
	s.mux.HandleFunc("/books/search", s.handleSearch)

	// role-gated catalog
	s.mux.Handle("/books", s.withUser(s.handleBooks))
	s.mux.Handle("/books/mine", s.withUser(s.handleListMine))
	s.mux.HandleFunc("/books/", s.handleBookByID)

	// internal
	s.mux.Handle("/internal/sellers/", s.withInternal(s.handleInternalSeller))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(w, r)
		if !ok {
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	token, ok := servicetoken.BearerToken(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return domain.User{}, false
	}
	user, err := s.account.Me(token)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("token resolution failed", "err", err)
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if _, err := s.internalVerify.Verify(token); err != nil {
			util.LoggerFromContext(r.Context()).Warn("internal token rejected", "err", err)
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	})
}

// GET /books (admin), POST /books (seller)
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListAll(user)
		if err != nil {
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "List of all books",
			"data":    books,
		})
	case http.MethodPost:
		s.handleCreateBook(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListPublic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListPublic()
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Approved books",
		"books":   books,
	})
}

type searchRequest struct {
	Name       string `validate:"required"`
	CategoryID string
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	req := searchRequest{
		Name:       r.URL.Query().Get("name"),
		CategoryID: r.URL.Query().Get("category_id"),
	}
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	books, err := s.app.Search(req.Name, req.CategoryID)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Search results",
		"books":   books,
	})
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListMine(user)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Your books",
		"books":   books,
	})
}

// /books/{id}, /books/{id}/approve, /books/{id}/reject
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeMessage(w, http.StatusNotFound, "Book not found")
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "approve":
			s.withUser(func(w http.ResponseWriter, r *http.Request, user domain.User) {
				s.handleApprove(w, r, user, id)
			}).ServeHTTP(w, r)
		case "reject":
			s.withUser(func(w http.ResponseWriter, r *http.Request, user domain.User) {
				s.handleReject(w, r, user, id)
			}).ServeHTTP(w, r)
		default:
			writeMessage(w, http.StatusNotFound, "Not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		// approved-only detail, no auth required
		book, err := s.app.View(id)
		if err != nil {
			if errors.Is(err, app.ErrNotFound) {
				writeMessage(w, http.StatusNotFound, "Book not found or not approved")
				return
			}
			writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Book detail",
			"book":    book,
		})
	case http.MethodPatch:
		s.withUser(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			s.handleUpdateBook(w, r, user, id)
		}).ServeHTTP(w, r)
	case http.MethodDelete:
		s.withUser(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			if err := s.app.Delete(user, id); err != nil {
				writeCatalogError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Book deleted successfully"})
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

type createBookRequest struct {
	Name         string  `validate:"required"`
	Author       string  `validate:"required"`
	Description  string
	Price        float64 `validate:"gte=0"`
	Stock        int     `validate:"gte=0"`
	CategoryName string  `validate:"required"`
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	form, cover, ok := parseBookForm(w, r)
	if !ok {
		return
	}
	req := createBookRequest{
		Name:         form.value("name"),
		Author:       form.value("author"),
		Description:  form.value("description"),
		CategoryName: form.value("category_name"),
	}
	if raw := form.value("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeMessage(w, http.StatusUnprocessableEntity, "price must be numeric")
			return
		}
		req.Price = price
	}
	if raw := form.value("stock"); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil {
			writeMessage(w, http.StatusUnprocessableEntity, "stock must be an integer")
			return
		}
		req.Stock = stock
	}
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	book, err := s.app.Create(user, app.CreateInput{
		Name:         req.Name,
		Author:       req.Author,
		Description:  req.Description,
		Price:        req.Price,
		Stock:        req.Stock,
		CategoryName: req.CategoryName,
		Cover:        cover,
	})
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Book submitted for approval",
		"book":    book,
	})
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	form, cover, ok := parseBookForm(w, r)
	if !ok {
		return
	}
	in := app.UpdateInput{Cover: cover}
	if v, set := form.lookup("name"); set {
		if v == "" {
			writeMessage(w, http.StatusUnprocessableEntity, "name must not be empty")
			return
		}
		in.Name = &v
	}
	if v, set := form.lookup("author"); set {
		if v == "" {
			writeMessage(w, http.StatusUnprocessableEntity, "author must not be empty")
			return
		}
		in.Author = &v
	}
	if v, set := form.lookup("description"); set {
		in.Description = &v
	}
	if v, set := form.lookup("price"); set {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil || price < 0 {
			writeMessage(w, http.StatusUnprocessableEntity, "price must be numeric and non-negative")
			return
		}
		in.Price = &price
	}
	if v, set := form.lookup("stock"); set {
		stock, err := strconv.Atoi(v)
		if err != nil || stock < 0 {
			writeMessage(w, http.StatusUnprocessableEntity, "stock must be a non-negative integer")
			return
		}
		in.Stock = &stock
	}
	if v, set := form.lookup("category_name"); set {
		if v == "" {
			writeMessage(w, http.StatusUnprocessableEntity, "category_name must not be empty")
			return
		}
		in.CategoryName = &v
	}

	book, err := s.app.Update(user, id, in)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Book updated and re-submitted",
		"book":    book,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	book, err := s.app.Approve(user, id)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Book approved successfully",
		"book":    book,
	})
}

type rejectRequest struct {
	RejectNote string `json:"reject_note" validate:"required,max=500"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "reject_note is required and at most 500 characters")
		return
	}
	book, err := s.app.Reject(user, id, req.RejectNote)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Book rejected with note",
		"book":    book,
	})
}

// DELETE /internal/sellers/{id}/books
func (s *Server) handleInternalSeller(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/internal/sellers/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "books" {
		writeMessage(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	removed, err := s.app.PurgeSellerBooks(parts[0])
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Seller books removed",
		"removed": removed,
	})
}

// form helpers

type bookForm struct {
	values map[string][]string
}

func (f bookForm) value(name string) string {
	if vs := f.values[name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func (f bookForm) lookup(name string) (string, bool) {
	vs, ok := f.values[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return strings.TrimSpace(vs[0]), true
}

// parseBookForm accepts multipart (with optional cover_image file) or
// urlencoded bodies. Reports false after writing an error response.
func parseBookForm(w http.ResponseWriter, r *http.Request) (bookForm, *app.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid form data")
			return bookForm{}, nil, false
		}
		form := bookForm{values: r.MultipartForm.Value}
		file, header, err := r.FormFile("cover_image")
		if err != nil {
			// absent file means no cover change
			return form, nil, true
		}
		// handler owns the upload; the reader is consumed before the
		// response is written
		return form, &app.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		}, true
	}
	if err := r.ParseForm(); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid form data")
		return bookForm{}, nil, false
	}
	return bookForm{values: r.PostForm}, nil, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		switch verrs[0].Tag() {
		case "required":
			return field + " is required"
		case "gte":
			return field + " must be at least " + verrs[0].Param()
		}
		return field + " is invalid"
	}
	return "invalid input"
}

func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrPermissionDenied):
		writeMessage(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, app.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, app.ErrCategoryNotFound):
		writeMessage(w, http.StatusNotFound, "Category not found")
	case errors.Is(err, app.ErrRejectNoteRequired):
		writeMessage(w, http.StatusUnprocessableEntity, "reject_note is required and at most 500 characters")
	default:
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
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

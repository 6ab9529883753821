package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookbazaar/internal/util"
	"bookbazaar/pkg/domain"
	"bookbazaar/pkg/storage"
	"bookbazaar/pkg/store"
)

const rejectNoteMaxLen = 500

// Config holds runtime configuration for the catalog core.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Objects     storage.ObjectStore

	StorageDriver  string // "minio" or "local"
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioPublicURL string
	MinioUseSSL    bool
	LocalPath      string
	LocalPublicURL string
}

// App is the catalog core wiring the book lifecycle to storage.
type App struct {
	store   store.Store
	objects storage.ObjectStore
}

// New constructs the catalog application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		switch cfg.StorageDriver {
		case "", "minio":
			objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL)
		case "local":
			objects, err = storage.NewLocalStore(cfg.LocalPath, cfg.LocalPublicURL)
		default:
			err = fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
		}
		if err != nil {
			return nil, err
		}
	}
	return &App{store: dataStore, objects: objects}, nil
}

// Upload carries an inbound image file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// CreateInput holds the fields for a new book submission.
type CreateInput struct {
	Name         string
	Author       string
	Description  string
	Price        float64
	Stock        int
	CategoryName string
	Cover        *Upload
}

// UpdateInput applies partial update semantics: nil fields are untouched.
type UpdateInput struct {
	Name         *string
	Author       *string
	Description  *string
	Price        *float64
	Stock        *int
	CategoryName *string
	Cover        *Upload
}

// ListAll returns every book regardless of status. Admin only.
func (a *App) ListAll(caller domain.User) ([]domain.Book, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, ErrPermissionDenied
	}
	return a.store.ListBooks()
}

// ListPublic returns approved books.
func (a *App) ListPublic() ([]domain.Book, error) {
	return a.store.ListBooksByStatus(domain.StatusApproved)
}

// View returns a single approved book. Pending and disapproved books are
// invisible through this path, including to their own seller.
func (a *App) View(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok || book.Status != domain.StatusApproved {
		return domain.Book{}, ErrNotFound
	}
	return book, nil
}

// Create submits a new book for approval. Seller only; the book starts
// pending. The cover blob is stored before the row so a failed row write can
// release the blob again.
func (a *App) Create(caller domain.User, in CreateInput) (domain.Book, error) {
	if caller.Role != domain.RoleSeller {
		return domain.Book{}, ErrPermissionDenied
	}
	category, err := a.store.GetOrCreateCategory(in.CategoryName)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get or create category: %w", err)
	}
	now := time.Now().UTC()
	book := domain.Book{
		ID:          util.NewID(),
		Name:        in.Name,
		Author:      in.Author,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		CategoryID:  category.ID,
		SellerID:    caller.ID,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Cover != nil {
		key, url, err := a.storeCover(book.ID, in.Cover)
		if err != nil {
			return domain.Book{}, err
		}
		book.CoverImage = key
		book.CoverImageURL = url
	}
	if err := a.store.SaveBook(book); err != nil {
		if book.CoverImage != "" {
			_ = a.objects.Delete(context.Background(), book.CoverImage)
		}
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	book.Category = &category
	return book, nil
}

// Approve marks a book approved. Admin only, idempotent.
func (a *App) Approve(caller domain.User, id string) (domain.Book, error) {
	if caller.Role != domain.RoleAdmin {
		return domain.Book{}, ErrPermissionDenied
	}
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	book.Status = domain.StatusApproved
	book.RejectNote = ""
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// Reject marks a book disapproved with a mandatory note. Admin only.
func (a *App) Reject(caller domain.User, id, note string) (domain.Book, error) {
	if caller.Role != domain.RoleAdmin {
		return domain.Book{}, ErrPermissionDenied
	}
	note = strings.TrimSpace(note)
	if note == "" || len(note) > rejectNoteMaxLen {
		return domain.Book{}, ErrRejectNoteRequired
	}
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	book.Status = domain.StatusDisapproved
	book.RejectNote = note
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// Update applies a partial edit by the owning seller. Any edit forces the
// book back to pending and clears a prior reject note, so every change goes
// through admin review again.
func (a *App) Update(caller domain.User, id string, in UpdateInput) (domain.Book, error) {
	if caller.Role != domain.RoleSeller {
		return domain.Book{}, ErrPermissionDenied
	}
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if book.SellerID != caller.ID {
		return domain.Book{}, ErrPermissionDenied
	}
	if in.Name != nil {
		book.Name = *in.Name
	}
	if in.Author != nil {
		book.Author = *in.Author
	}
	if in.Description != nil {
		book.Description = *in.Description
	}
	if in.Price != nil {
		book.Price = *in.Price
	}
	if in.Stock != nil {
		book.Stock = *in.Stock
	}
	if in.CategoryName != nil {
		category, found, err := a.store.GetCategoryByName(*in.CategoryName)
		if err != nil {
			return domain.Book{}, fmt.Errorf("fetch category: %w", err)
		}
		if !found {
			return domain.Book{}, ErrCategoryNotFound
		}
		book.CategoryID = category.ID
		book.Category = &category
	}
	if in.Cover != nil {
		if book.CoverImage != "" {
			_ = a.objects.Delete(context.Background(), book.CoverImage)
		}
		key, url, err := a.storeCover(book.ID, in.Cover)
		if err != nil {
			return domain.Book{}, err
		}
		book.CoverImage = key
		book.CoverImageURL = url
	}
	book.Status = domain.StatusPending
	book.RejectNote = ""
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// Delete removes a book and releases its cover blob. Owning seller only.
func (a *App) Delete(caller domain.User, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if caller.Role != domain.RoleSeller || book.SellerID != caller.ID {
		return ErrPermissionDenied
	}
	if book.CoverImage != "" {
		_ = a.objects.Delete(context.Background(), book.CoverImage)
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// Search returns approved books whose name starts with the prefix,
// optionally filtered by category.
func (a *App) Search(namePrefix, categoryID string) ([]domain.Book, error) {
	return a.store.SearchBooks(namePrefix, categoryID)
}

// ListMine returns all of the caller's own books regardless of status.
// Seller only.
func (a *App) ListMine(caller domain.User) ([]domain.Book, error) {
	if caller.Role != domain.RoleSeller {
		return nil, ErrPermissionDenied
	}
	return a.store.ListBooksBySeller(caller.ID)
}

// PurgeSellerBooks removes every book of a seller along with the cover
// blobs. Invoked by the account service when a seller account is deleted.
func (a *App) PurgeSellerBooks(sellerID string) (int, error) {
	books, err := a.store.ListBooksBySeller(sellerID)
	if err != nil {
		return 0, fmt.Errorf("list seller books: %w", err)
	}
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(4)
	for _, book := range books {
		if book.CoverImage == "" {
			continue
		}
		key := book.CoverImage
		g.Go(func() error {
			return a.objects.Delete(ctx, key)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("delete cover blobs: %w", err)
	}
	for _, book := range books {
		if err := a.store.DeleteBook(book.ID); err != nil {
			return 0, fmt.Errorf("delete book %s: %w", book.ID, err)
		}
	}
	return len(books), nil
}

func (a *App) storeCover(bookID string, cover *Upload) (string, string, error) {
	key := buildCoverKey(bookID, cover.Filename)
	contentType := cover.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(cover.Filename)))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := a.objects.Put(context.Background(), key, cover.Reader, cover.Size, contentType)
	if err != nil {
		return "", "", fmt.Errorf("store cover: %w", err)
	}
	return key, url, nil
}

func buildCoverKey(bookID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "cover"
	}
	return path.Join("book_covers", bookID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

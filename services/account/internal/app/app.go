package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"bookbazaar/internal/servicetoken"
	"bookbazaar/internal/util"
	"bookbazaar/pkg/auth"
	"bookbazaar/pkg/domain"
	"bookbazaar/pkg/storage"
	"bookbazaar/pkg/store"
)

// Config holds runtime configuration for the account core.
type Config struct {
	DatabaseURL string
	Store       store.Store

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	Sessions      store.SessionStore

	Objects        storage.ObjectStore
	StorageDriver  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioPublicURL string
	MinioUseSSL    bool
	LocalPath      string
	LocalPublicURL string

	CatalogURL          string
	InternalTokenSecret string
	Purger              bookPurger
}

const defaultSessionTTL = 24 * time.Hour

// App is the account core handling identity, sessions, and profile images.
type App struct {
	store    store.Store
	sessions store.SessionStore
	objects  storage.ObjectStore
	purger   bookPurger
}

// New constructs the account application.
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
	sessions := cfg.Sessions
	if sessions == nil {
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis addr required for sessions")
		}
		ttl := cfg.SessionTTL
		if ttl <= 0 {
			ttl = defaultSessionTTL
		}
		sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, ttl)
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
	purger := cfg.Purger
	if purger == nil {
		if cfg.CatalogURL == "" {
			return nil, fmt.Errorf("catalog URL required")
		}
		signer, err := servicetoken.NewSigner(cfg.InternalTokenSecret, "account-service", "catalog", 0)
		if err != nil {
			return nil, fmt.Errorf("init internal signer: %w", err)
		}
		purger, err = newCatalogClient(cfg.CatalogURL, signer)
		if err != nil {
			return nil, err
		}
	}
	return &App{store: dataStore, sessions: sessions, objects: objects, purger: purger}, nil
}

// Upload carries an inbound image file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// SignUpInput holds the fields for a new account. Role is not
// accepted here: every signup is a customer, and promotions go
// through an admin.
type SignUpInput struct {
	Name         string
	Email        string
	Password     string
	ProfileImage *Upload
}

// SignUp registers a new user and opens a session. The profile image is
// uploaded before the user row is written; on a write failure the blob
// is deleted again.
func (a *App) SignUp(in SignUpInput) (domain.User, string, error) {
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, "", err
	}
	email := normalizeEmail(in.Email)
	taken, err := a.store.EmailTaken(email, "")
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, "", ErrEmailTaken
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.ProfileImage != nil {
		key, url, err := a.storeProfileImage(user.ID, in.ProfileImage)
		if err != nil {
			return domain.User{}, "", err
		}
		user.ProfileImageID = key
		user.ProfileImageURL = url
	}
	if err := a.store.CreateUser(user); err != nil {
		if user.ProfileImageID != "" {
			if delErr := a.objects.Delete(context.Background(), user.ProfileImageID); delErr != nil {
				slog.Warn("orphaned profile image after failed signup", "key", user.ProfileImageID, "err", delErr)
			}
		}
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// SignIn checks credentials and opens a session.
func (a *App) SignIn(email, password string) (domain.User, string, error) {
	user, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// SignOut invalidates the session token.
func (a *App) SignOut(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a session token to its user.
func (a *App) UserFromToken(token string) (domain.User, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthenticated
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		// the account was deleted while the session was still live
		return domain.User{}, ErrUnauthenticated
	}
	return user, nil
}

// UpdateProfileInput applies partial update semantics: nil fields are
// untouched.
type UpdateProfileInput struct {
	Name         *string
	Email        *string
	Password     *string
	ProfileImage *Upload
}

// UpdateProfile edits a user. Callers may edit themselves; admins may
// edit anyone. Replacing the profile image deletes the previous blob.
func (a *App) UpdateProfile(caller domain.User, id string, in UpdateProfileInput) (domain.User, error) {
	user, err := a.loadForSelfOrAdmin(caller, id)
	if err != nil {
		return domain.User{}, err
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email != user.Email {
			taken, err := a.store.EmailTaken(email, user.ID)
			if err != nil {
				return domain.User{}, fmt.Errorf("check email: %w", err)
			}
			if taken {
				return domain.User{}, ErrEmailTaken
			}
			user.Email = email
		}
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Password != nil {
		if err := auth.ValidatePassword(*in.Password); err != nil {
			return domain.User{}, err
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	if in.ProfileImage != nil {
		if user.ProfileImageID != "" {
			if err := a.objects.Delete(context.Background(), user.ProfileImageID); err != nil {
				slog.Warn("stale profile image not deleted", "key", user.ProfileImageID, "err", err)
			}
		}
		key, url, err := a.storeProfileImage(user.ID, in.ProfileImage)
		if err != nil {
			return domain.User{}, err
		}
		user.ProfileImageID = key
		user.ProfileImageURL = url
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// DeleteProfileImage removes the user's profile image blob and clears
// the reference. Self or admin.
func (a *App) DeleteProfileImage(caller domain.User, id string) (domain.User, error) {
	user, err := a.loadForSelfOrAdmin(caller, id)
	if err != nil {
		return domain.User{}, err
	}
	if user.ProfileImageID != "" {
		if err := a.objects.Delete(context.Background(), user.ProfileImageID); err != nil {
			return domain.User{}, fmt.Errorf("delete profile image: %w", err)
		}
		user.ProfileImageID = ""
		user.ProfileImageURL = ""
		user.UpdatedAt = time.Now().UTC()
		if err := a.store.SaveUser(user); err != nil {
			return domain.User{}, fmt.Errorf("save user: %w", err)
		}
	}
	return user, nil
}

// DeleteUser removes an account. Sellers get their whole catalog purged
// first so no orphaned books or cover blobs remain.
func (a *App) DeleteUser(caller domain.User, id string) error {
	user, err := a.loadForSelfOrAdmin(caller, id)
	if err != nil {
		return err
	}
	if user.Role == domain.RoleSeller {
		removed, err := a.purger.PurgeSellerBooks(user.ID)
		if err != nil {
			return fmt.Errorf("purge seller books: %w", err)
		}
		if removed > 0 {
			slog.Info("seller catalog purged", "user_id", user.ID, "removed", removed)
		}
	}
	if user.ProfileImageID != "" {
		if err := a.objects.Delete(context.Background(), user.ProfileImageID); err != nil {
			slog.Warn("profile image not deleted", "key", user.ProfileImageID, "err", err)
		}
	}
	if err := a.store.DeleteUser(user.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ListUsers returns all accounts, newest first. Admin only.
func (a *App) ListUsers(caller domain.User) ([]domain.User, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, ErrPermissionDenied
	}
	return a.store.ListUsers()
}

func (a *App) loadForSelfOrAdmin(caller domain.User, id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if caller.ID != user.ID && caller.Role != domain.RoleAdmin {
		return domain.User{}, ErrPermissionDenied
	}
	return user, nil
}

func (a *App) storeProfileImage(userID string, image *Upload) (string, string, error) {
	key := buildProfileKey(userID, image.Filename)
	contentType := image.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(image.Filename)))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := a.objects.Put(context.Background(), key, image.Reader, image.Size, contentType)
	if err != nil {
		return "", "", fmt.Errorf("store profile image: %w", err)
	}
	return key, url, nil
}

func buildProfileKey(userID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "profile"
	}
	return path.Join("profile_images", userID, name)
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

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

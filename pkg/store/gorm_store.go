package store

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookbazaar/internal/util"
	"bookbazaar/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&CategoryModel{},
		&BookModel{},
		&OrderModel{},
		&CartModel{},
		&SellerRequestModel{},
		&NotificationModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateUser inserts a new user row.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// SaveUser updates an existing user row.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "email", "password_hash", "role",
			"profile_image_url", "profile_image_id", "updated_at",
		}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// EmailTaken reports whether another user already holds the email.
func (s *GormStore) EmailTaken(email, excludeUserID string) (bool, error) {
	var count int64
	tx := s.db.Model(&UserModel{}).Where("email = ?", email)
	if excludeUserID != "" {
		tx = tx.Where("id <> ?", excludeUserID)
	}
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUsers returns all users, newest first.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// DeleteUser removes a user row.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Delete(&UserModel{}, "id = ?", id).Error
}

// GetOrCreateCategory returns the category with the exact name, creating it
// when absent.
func (s *GormStore) GetOrCreateCategory(name string) (domain.Category, error) {
	var model CategoryModel
	err := s.db.Where("name = ?", name).
		Attrs(CategoryModel{ID: util.NewID()}).
		FirstOrCreate(&model).Error
	if err != nil {
		return domain.Category{}, err
	}
	return domain.Category{ID: model.ID, Name: model.Name}, nil
}

// GetCategoryByName looks up a category by exact name.
func (s *GormStore) GetCategoryByName(name string) (domain.Category, bool, error) {
	var model CategoryModel
	if err := s.db.Where("name = ?", name).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Category{}, false, nil
		}
		return domain.Category{}, false, err
	}
	return domain.Category{ID: model.ID, Name: model.Name}, true, nil
}

// SaveBook stores or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Omit("Category", "Seller").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "author", "description", "price", "stock",
			"cover_image", "cover_image_url", "category_id",
			"status", "reject_note", "updated_at",
		}),
	}).Create(&model).Error
}

// GetBook retrieves a book with seller and category attached.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	err := s.db.Preload("Category").Preload("Seller").First(&model, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns all books regardless of status.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	return s.listBooks()
}

// ListBooksByStatus returns books in the given lifecycle state.
func (s *GormStore) ListBooksByStatus(status domain.BookStatus) ([]domain.Book, error) {
	return s.listBooks("status = ?", string(status))
}

// ListBooksBySeller returns a seller's books regardless of status.
func (s *GormStore) ListBooksBySeller(sellerID string) ([]domain.Book, error) {
	return s.listBooks("seller_id = ?", sellerID)
}

// SearchBooks returns approved books whose name starts with the prefix,
// optionally restricted to a category.
func (s *GormStore) SearchBooks(namePrefix, categoryID string) ([]domain.Book, error) {
	tx := s.db.Preload("Category").Preload("Seller").
		Where("status = ?", string(domain.StatusApproved)).
		Where("name LIKE ?", escapeLike(namePrefix)+"%").
		Order("created_at ASC")
	if categoryID != "" {
		tx = tx.Where("category_id = ?", categoryID)
	}
	var models []BookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return booksFromModels(models), nil
}

// DeleteBook removes a book row.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

func (s *GormStore) listBooks(conds ...any) ([]domain.Book, error) {
	tx := s.db.Preload("Category").Preload("Seller").Order("created_at ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	var models []BookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return booksFromModels(models), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		Role:            string(u.Role),
		ProfileImageURL: u.ProfileImageURL,
		ProfileImageID:  u.ProfileImageID,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:              m.ID,
		Name:            m.Name,
		Email:           m.Email,
		PasswordHash:    m.PasswordHash,
		Role:            domain.UserRole(m.Role),
		ProfileImageURL: m.ProfileImageURL,
		ProfileImageID:  m.ProfileImageID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:            b.ID,
		Name:          b.Name,
		Author:        b.Author,
		Description:   b.Description,
		Price:         b.Price,
		Stock:         b.Stock,
		CoverImage:    b.CoverImage,
		CoverImageURL: b.CoverImageURL,
		CategoryID:    b.CategoryID,
		SellerID:      b.SellerID,
		Status:        string(b.Status),
		RejectNote:    b.RejectNote,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	book := domain.Book{
		ID:            m.ID,
		Name:          m.Name,
		Author:        m.Author,
		Description:   m.Description,
		Price:         m.Price,
		Stock:         m.Stock,
		CoverImage:    m.CoverImage,
		CoverImageURL: m.CoverImageURL,
		CategoryID:    m.CategoryID,
		SellerID:      m.SellerID,
		Status:        domain.BookStatus(m.Status),
		RejectNote:    m.RejectNote,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Category.ID != "" {
		book.Category = &domain.Category{ID: m.Category.ID, Name: m.Category.Name}
	}
	if m.Seller.ID != "" {
		seller := userFromModel(m.Seller)
		book.Seller = &seller
	}
	return book
}

func booksFromModels(models []BookModel) []domain.Book {
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res
}

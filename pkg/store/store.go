package store

import "bookbazaar/pkg/domain"

// Store defines persistence operations for users, categories, and books.
type Store interface {
	// users
	CreateUser(domain.User) error
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	EmailTaken(email, excludeUserID string) (bool, error)
	ListUsers() ([]domain.User, error)
	DeleteUser(id string) error

	// categories
	GetOrCreateCategory(name string) (domain.Category, error)
	GetCategoryByName(name string) (domain.Category, bool, error)

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	ListBooksByStatus(status domain.BookStatus) ([]domain.Book, error)
	ListBooksBySeller(sellerID string) ([]domain.Book, error)
	SearchBooks(namePrefix, categoryID string) ([]domain.Book, error)
	DeleteBook(id string) error
}

// SessionStore persists bearer session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

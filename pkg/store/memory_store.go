package store

import (
	"sort"
	"strings"
	"sync"

	"bookbazaar/internal/util"
	"bookbazaar/pkg/domain"
)

// MemoryStore keeps all rows in-process. Used in tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	categories map[string]domain.Category // key: name
	books      map[string]domain.Book
	bookOrder  []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		categories: make(map[string]domain.Category),
		books:      make(map[string]domain.Book),
	}
}

// CreateUser inserts a user.
func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

// SaveUser replaces a user record.
func (m *MemoryStore) SaveUser(u domain.User) error {
	return m.CreateUser(u)
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// EmailTaken reports whether another user already holds the email.
func (m *MemoryStore) EmailTaken(email, excludeUserID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email && u.ID != excludeUserID {
			return true, nil
		}
	}
	return false, nil
}

// ListUsers returns all users, newest first.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// DeleteUser removes a user.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

// GetOrCreateCategory returns the category with the exact name, creating it
// when absent.
func (m *MemoryStore) GetOrCreateCategory(name string) (domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.categories[name]; ok {
		return c, nil
	}
	c := domain.Category{ID: util.NewID(), Name: name}
	m.categories[name] = c
	return c, nil
}

// GetCategoryByName looks up a category by exact name.
func (m *MemoryStore) GetCategoryByName(name string) (domain.Category, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[name]
	return c, ok, nil
}

// SaveBook stores or replaces a book and tracks insertion order.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Category = nil
	b.Seller = nil
	if _, exists := m.books[b.ID]; !exists {
		m.bookOrder = append(m.bookOrder, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book with seller and category attached.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	return m.attach(b), true, nil
}

// ListBooks returns all books in insertion order.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	return m.filterBooks(func(domain.Book) bool { return true }), nil
}

// ListBooksByStatus returns books in the given lifecycle state.
func (m *MemoryStore) ListBooksByStatus(status domain.BookStatus) ([]domain.Book, error) {
	return m.filterBooks(func(b domain.Book) bool { return b.Status == status }), nil
}

// ListBooksBySeller returns a seller's books regardless of status.
func (m *MemoryStore) ListBooksBySeller(sellerID string) ([]domain.Book, error) {
	return m.filterBooks(func(b domain.Book) bool { return b.SellerID == sellerID }), nil
}

// SearchBooks returns approved books whose name starts with the prefix.
func (m *MemoryStore) SearchBooks(namePrefix, categoryID string) ([]domain.Book, error) {
	return m.filterBooks(func(b domain.Book) bool {
		if b.Status != domain.StatusApproved {
			return false
		}
		if !strings.HasPrefix(b.Name, namePrefix) {
			return false
		}
		return categoryID == "" || b.CategoryID == categoryID
	}), nil
}

// DeleteBook removes a book.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	filtered := m.bookOrder[:0]
	for _, item := range m.bookOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.bookOrder = filtered
	return nil
}

func (m *MemoryStore) filterBooks(keep func(domain.Book) bool) []domain.Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.bookOrder))
	for _, id := range m.bookOrder {
		if b, ok := m.books[id]; ok && keep(b) {
			res = append(res, m.attach(b))
		}
	}
	return res
}

// attach mirrors the gorm store's preloads. Callers must hold the lock.
func (m *MemoryStore) attach(b domain.Book) domain.Book {
	for _, c := range m.categories {
		if c.ID == b.CategoryID {
			cat := c
			b.Category = &cat
			break
		}
	}
	if seller, ok := m.users[b.SellerID]; ok {
		b.Seller = &seller
	}
	return b
}

package domain

import (
	"strings"
	"time"
)

type BookStatus string

const (
	StatusPending     BookStatus = "pending"
	StatusApproved    BookStatus = "approved"
	StatusDisapproved BookStatus = "disapproved"
)

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleSeller   UserRole = "seller"
	RoleCustomer UserRole = "customer"
)

// ParseUserRole maps a raw string onto the closed role set.
func ParseUserRole(raw string) (UserRole, bool) {
	switch UserRole(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSeller:
		return RoleSeller, true
	case RoleCustomer:
		return RoleCustomer, true
	default:
		return "", false
	}
}

type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            UserRole  `json:"role"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	ProfileImageID  string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Author        string     `json:"author"`
	Description   string     `json:"description,omitempty"`
	Price         float64    `json:"price"`
	Stock         int        `json:"stock"`
	CoverImage    string     `json:"-"`
	CoverImageURL string     `json:"coverImageUrl,omitempty"`
	CategoryID    string     `json:"categoryId"`
	SellerID      string     `json:"sellerId"`
	Status        BookStatus `json:"status"`
	RejectNote    string     `json:"rejectNote,omitempty"`
	Category      *Category  `json:"category,omitempty"`
	Seller        *User      `json:"seller,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID              string    `gorm:"primaryKey"`
	Name            string    `gorm:"not null"`
	Email           string    `gorm:"uniqueIndex;not null"`
	PasswordHash    string    `gorm:"not null"`
	Role            string    `gorm:"not null"`
	ProfileImageURL string
	ProfileImageID  string
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type CategoryModel struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

type BookModel struct {
	ID            string  `gorm:"primaryKey"`
	Name          string  `gorm:"not null;index"`
	Author        string  `gorm:"not null"`
	Description   string
	Price         float64 `gorm:"not null"`
	Stock         int     `gorm:"not null"`
	CoverImage    string
	CoverImageURL string
	CategoryID    string        `gorm:"not null;index"`
	Category      CategoryModel `gorm:"foreignKey:CategoryID"`
	SellerID      string        `gorm:"not null;index"`
	Seller        UserModel     `gorm:"foreignKey:SellerID"`
	Status        string        `gorm:"not null;index"`
	RejectNote    string
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// Relation-only tables: referenced by the data model but not exercised by
// the catalog or account services.
type OrderModel struct {
	ID         string    `gorm:"primaryKey"`
	CustomerID string    `gorm:"not null;index"`
	BookID     string    `gorm:"not null;index"`
	Quantity   int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

type CartModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type SellerRequestModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"uniqueIndex;not null"`
	Status    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type NotificationModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	ReadAt    *time.Time
	CreatedAt time.Time `gorm:"not null;index"`
}

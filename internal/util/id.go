package util

import "github.com/google/uuid"

// NewID returns a random uuid string.
func NewID() string {
	return uuid.NewString()
}

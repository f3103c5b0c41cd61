package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is pure classification data for rules. Deleting a category
// detaches referencing rules; it never cascades.
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Category model
func (Category) TableName() string {
	return "categories"
}

// NewCategory creates a new Category instance
func NewCategory(name, description string) *Category {
	return &Category{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}
}

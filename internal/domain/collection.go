package domain

import (
	"strings"
	"time"
)

// Visibility controls who inside a tenant may read a collection.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityTenant  Visibility = "tenant"
)

// Collection represents a named, access-controlled group of ingested chunks
// belonging to one owner. The owner is immutable for the lifetime of the
// collection; deleting a collection cascades its chunk entries.
type Collection struct {
	ID             string
	OwnerID        string
	Name           string
	Description    string
	Visibility     Visibility
	EmbeddingModel string
	CreatedAt      time.Time
}

// NewCollection creates a new Collection instance
func NewCollection(id, ownerID, name, description string, visibility Visibility, embeddingModel string, createdAt time.Time) *Collection {
	return &Collection{
		ID:             id,
		OwnerID:        ownerID,
		Name:           name,
		Description:    description,
		Visibility:     visibility,
		EmbeddingModel: embeddingModel,
		CreatedAt:      createdAt,
	}
}

// Validate checks required fields and the visibility enum.
func (c *Collection) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewDomainErrorWithCause(ErrCodeValidation, "collection name is required", ErrMissingRequiredField)
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		return NewDomainErrorWithCause(ErrCodeValidation, "collection owner is required", ErrMissingRequiredField)
	}
	switch c.Visibility {
	case VisibilityPrivate, VisibilityTenant:
		return nil
	default:
		return ErrInvalidVisibility
	}
}

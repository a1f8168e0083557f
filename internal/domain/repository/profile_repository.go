package repository

import (
	"context"

	"bookmarket/internal/domain/entity"
)

// UserDirectory is the identity collaborator.
type UserDirectory interface {
	GetProfile(ctx context.Context, userID string) (*entity.UserProfile, error)
}

// BookCatalog is the listing collaborator.
type BookCatalog interface {
	GetBookSummary(ctx context.Context, bookID string) (*entity.BookSummary, error)
}

package repository

import (
	"context"

	"cloud.google.com/go/firestore"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/domain/repository"
	"bookmarket/pkg/errors"
)

// firestoreProfileRepository reads the user and book records owned by the rest of the
// marketplace. The messaging core never writes to these collections.
type firestoreProfileRepository struct {
	client *firestore.Client
}

func NewFirestoreProfileRepository(client *firestore.Client) *firestoreProfileRepository {
	return &firestoreProfileRepository{
		client: client,
	}
}

var (
	_ repository.UserDirectory = (*firestoreProfileRepository)(nil)
	_ repository.BookCatalog   = (*firestoreProfileRepository)(nil)
)

func (r *firestoreProfileRepository) GetProfile(ctx context.Context, userID string) (*entity.UserProfile, error) {
	doc, err := r.client.Collection("users").Doc(userID).Get(ctx)
	if err != nil {
		return nil, classify(err, "User", "Failed to load user")
	}

	var profile entity.UserProfile
	if err := doc.DataTo(&profile); err != nil {
		return nil, errors.Persistence("Failed to parse user data", err)
	}
	profile.ID = doc.Ref.ID
	return &profile, nil
}

func (r *firestoreProfileRepository) GetBookSummary(ctx context.Context, bookID string) (*entity.BookSummary, error) {
	doc, err := r.client.Collection("books").Doc(bookID).Get(ctx)
	if err != nil {
		return nil, classify(err, "Book", "Failed to load book")
	}

	var book entity.BookSummary
	if err := doc.DataTo(&book); err != nil {
		return nil, errors.Persistence("Failed to parse book data", err)
	}
	book.ID = doc.Ref.ID
	return &book, nil
}

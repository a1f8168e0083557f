package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/domain/repository"
	"bookmarket/internal/infrastructure/cache"
	"bookmarket/pkg/logger"
)

// CachedProfileRepository puts a read-through cache in front of the user and book collaborators.
// Cache failures are logged and fall through to the source.
type CachedProfileRepository struct {
	users repository.UserDirectory
	books repository.BookCatalog
	cache cache.Cache
	ttl   time.Duration
}

var (
	_ repository.UserDirectory = (*CachedProfileRepository)(nil)
	_ repository.BookCatalog   = (*CachedProfileRepository)(nil)
)

func NewCachedProfileRepository(users repository.UserDirectory, books repository.BookCatalog, c cache.Cache, ttl time.Duration) *CachedProfileRepository {
	return &CachedProfileRepository{users: users, books: books, cache: c, ttl: ttl}
}

func (r *CachedProfileRepository) GetProfile(ctx context.Context, userID string) (*entity.UserProfile, error) {
	key := "profile:user:" + userID
	var profile entity.UserProfile
	if r.lookup(ctx, key, &profile) {
		profile.ID = userID
		return &profile, nil
	}

	fresh, err := r.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, fresh)
	return fresh, nil
}

func (r *CachedProfileRepository) GetBookSummary(ctx context.Context, bookID string) (*entity.BookSummary, error) {
	key := "profile:book:" + bookID
	var book entity.BookSummary
	if r.lookup(ctx, key, &book) {
		book.ID = bookID
		return &book, nil
	}

	fresh, err := r.books.GetBookSummary(ctx, bookID)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, fresh)
	return fresh, nil
}

func (r *CachedProfileRepository) lookup(ctx context.Context, key string, dst interface{}) bool {
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !stderrors.Is(err, cache.ErrMiss) {
			logger.Warn("Profile cache get %s failed: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logger.Warn("Profile cache entry %s is corrupt: %v", key, err)
		return false
	}
	return true
}

func (r *CachedProfileRepository) store(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(raw), r.ttl); err != nil {
		logger.Warn("Profile cache set %s failed: %v", key, err)
	}
}

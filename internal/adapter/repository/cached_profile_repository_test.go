package repository

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/infrastructure/cache"
	"bookmarket/pkg/errors"
)

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", c.getErr
	}
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Del(ctx context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.values[k]; ok {
			delete(c.values, k)
			n++
		}
	}
	return n, nil
}

func (c *mapCache) Ping(ctx context.Context) error { return nil }
func (c *mapCache) Close() error                   { return nil }

type countingProfiles struct {
	users map[string]*entity.UserProfile
	books map[string]*entity.BookSummary
	calls int
}

func (p *countingProfiles) GetProfile(ctx context.Context, userID string) (*entity.UserProfile, error) {
	p.calls++
	u, ok := p.users[userID]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return u, nil
}

func (p *countingProfiles) GetBookSummary(ctx context.Context, bookID string) (*entity.BookSummary, error) {
	p.calls++
	b, ok := p.books[bookID]
	if !ok {
		return nil, errors.NotFound("Book", nil)
	}
	return b, nil
}

func newProfiles() *countingProfiles {
	return &countingProfiles{
		users: map[string]*entity.UserProfile{"u1": {ID: "u1", Username: "alice"}},
		books: map[string]*entity.BookSummary{"b1": {ID: "b1", Title: "Dune"}},
	}
}

func TestCachedProfileReadsThrough(t *testing.T) {
	source := newProfiles()
	c := newMapCache()
	repo := NewCachedProfileRepository(source, source, c, 10*time.Minute)
	ctx := context.Background()

	first, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	second, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, "alice", second.Username)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 10*time.Minute, c.ttls["profile:user:u1"])

	book, err := repo.GetBookSummary(ctx, "b1")
	require.NoError(t, err)
	book, err = repo.GetBookSummary(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", book.ID)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, 2, source.calls)
}

func TestCachedProfileDoesNotCacheMisses(t *testing.T) {
	source := newProfiles()
	repo := NewCachedProfileRepository(source, source, newMapCache(), time.Minute)

	_, err := repo.GetProfile(context.Background(), "ghost")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	_, err = repo.GetProfile(context.Background(), "ghost")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	assert.Equal(t, 2, source.calls)
}

func TestCachedProfileFallsBackWhenCacheFails(t *testing.T) {
	source := newProfiles()
	c := newMapCache()
	c.getErr = stderrors.New("connection refused")
	repo := NewCachedProfileRepository(source, source, c, time.Minute)

	profile, err := repo.GetProfile(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
}

func TestCachedProfileIgnoresCorruptEntries(t *testing.T) {
	source := newProfiles()
	c := newMapCache()
	c.values["profile:user:u1"] = "{not json"
	repo := NewCachedProfileRepository(source, source, c, time.Minute)

	profile, err := repo.GetProfile(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, 1, source.calls)
}

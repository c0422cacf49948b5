package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/conorfennell/ankibot/internal/domain"
)

// FieldFetcher loads note fields for a set of cards in one request.
type FieldFetcher interface {
	CardsInfo(ctx context.Context, ids []domain.CardID) (map[domain.CardID]domain.FieldSet, error)
}

// Cache holds the fields of every card a session has seen. It lives exactly
// as long as one session and is never shared between sessions.
type Cache struct {
	mu      sync.Mutex
	fetcher FieldFetcher
	entries map[domain.CardID]domain.FieldSet
}

func NewCache(fetcher FieldFetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		entries: make(map[domain.CardID]domain.FieldSet),
	}
}

func (c *Cache) Get(id domain.CardID) (domain.FieldSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields, ok := c.entries[id]
	return fields, ok
}

func (c *Cache) Put(id domain.CardID, fields domain.FieldSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = fields
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// BulkLoad fetches every card in ids that is not cached yet, using a single
// request. Nothing is fetched when all of them are cached already.
func (c *Cache) BulkLoad(ctx context.Context, ids []domain.CardID) error {
	missing := c.missing(ids)
	if len(missing) == 0 {
		return nil
	}
	fetched, err := c.fetcher.CardsInfo(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load fields for %d cards: %w", len(missing), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, fields := range fetched {
		if _, ok := c.entries[id]; !ok {
			c.entries[id] = fields
		}
	}
	return nil
}

// Ensure returns the fields of id, fetching them only on a cache miss.
func (c *Cache) Ensure(ctx context.Context, id domain.CardID) (domain.FieldSet, error) {
	if fields, ok := c.Get(id); ok {
		return fields, nil
	}
	if err := c.BulkLoad(ctx, []domain.CardID{id}); err != nil {
		return nil, err
	}
	fields, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("card %d: %w", id, ErrCardNotFound)
	}
	return fields, nil
}

func (c *Cache) missing(ids []domain.CardID) []domain.CardID {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[domain.CardID]bool, len(ids))
	var out []domain.CardID
	for _, id := range ids {
		if _, ok := c.entries[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// MemoryStore is an in-memory KeyedStore with the same contract as the
// DynamoDB implementation. It backs unit tests and local runs without an
// emulator.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Item
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partitions: make(map[string]map[string]Item),
	}
}

// Put overwrites any existing item at the exact key.
func (s *MemoryStore) Put(ctx context.Context, partition, sortKey string, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.partitions[partition] == nil {
		s.partitions[partition] = make(map[string]Item)
	}
	stored := copyItem(item)
	stored[attrPK] = partition
	stored[attrSK] = sortKey
	s.partitions[partition][sortKey] = stored
	return nil
}

// Get returns the item at the exact key, or a NotFound error.
func (s *MemoryStore) Get(ctx context.Context, partition, sortKey string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.partitions[partition][sortKey]
	if !ok {
		return nil, appErrors.NewNotFound("item not found: " + partition + "/" + sortKey)
	}
	return copyItem(item), nil
}

// Delete removes the item if present. Deleting a missing key succeeds.
func (s *MemoryStore) Delete(ctx context.Context, partition, sortKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partitions[partition], sortKey)
	return nil
}

// List returns items in a partition ordered by sort key ascending.
func (s *MemoryStore) List(ctx context.Context, partition string, opts ListOptions) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var after string
	if opts.Cursor != "" {
		start, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		after = start.SK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.partitions[partition]))
	for sk := range s.partitions[partition] {
		if opts.Prefix != "" && !strings.HasPrefix(sk, opts.Prefix) {
			continue
		}
		if after != "" && sk <= after {
			continue
		}
		keys = append(keys, sk)
	}
	sort.Strings(keys)

	page := &Page{Items: make([]Item, 0, len(keys))}
	for i, sk := range keys {
		if opts.Limit > 0 && int32(i) == opts.Limit {
			page.Cursor = encodeCursor(partition, keys[i-1])
			break
		}
		page.Items = append(page.Items, copyItem(s.partitions[partition][sk]))
	}
	return page, nil
}

func copyItem(item Item) Item {
	dup := make(Item, len(item))
	for k, v := range item {
		dup[k] = v
	}
	return dup
}

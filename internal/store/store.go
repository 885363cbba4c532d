// Package store implements the partitioned key-value abstraction backing all
// persisted entities. Items are addressed by a two-part key: a partition
// identifier and a sort key, ordered lexicographically within the partition.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"

	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// Item is the attribute payload stored at one (partition, sortKey) address.
// The reserved "pk" and "sk" attributes carry the key itself and are present
// on every item returned by reads.
type Item map[string]interface{}

// ListOptions narrows and paginates a partition listing.
type ListOptions struct {
	// Prefix restricts results to sort keys beginning with this value.
	Prefix string
	// Limit caps the number of items per page; zero means no cap.
	Limit int32
	// Cursor continues a previous listing. Opaque to callers.
	Cursor string
}

// Page is one page of a partition listing, ascending by sort key.
type Page struct {
	Items []Item
	// Cursor is non-empty when more results exist.
	Cursor string
}

// KeyedStore is the single point of serialization for a given
// (partition, sortKey). Individual operations are atomic at that granularity;
// there is no multi-key transaction support.
type KeyedStore interface {
	// Put overwrites any existing item at the exact key. Idempotent.
	Put(ctx context.Context, partition, sortKey string, item Item) error
	// Get returns the item or a NotFound error.
	Get(ctx context.Context, partition, sortKey string) (Item, error)
	// Delete removes the item if present. Deleting a missing key succeeds.
	Delete(ctx context.Context, partition, sortKey string) error
	// List returns items in a partition ordered by sort key ascending.
	// An empty partition yields an empty page, not an error.
	List(ctx context.Context, partition string, opts ListOptions) (*Page, error)
}

// cursorKey is the continuation position round-tripped through Page.Cursor.
type cursorKey struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

func encodeCursor(pk, sk string) string {
	raw, _ := json.Marshal(cursorKey{PK: pk, SK: sk})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (cursorKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cursorKey{}, appErrors.NewValidation("malformed pagination cursor")
	}
	var key cursorKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return cursorKey{}, appErrors.NewValidation("malformed pagination cursor")
	}
	return key, nil
}

// Package hydrate resolves stored identifiers into full referenced records
// at read time. The persisted form always keeps the bare identifier; the
// hydrated view is a separate, never-persisted representation.
package hydrate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/domain"
	"github.com/obahamonde/cloudantic/internal/store"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// PostView is a post prepared for presentation. Author carries the resolved
// profile; it stays nil when the referenced user could not be resolved, in
// which case the post is still renderable by its User identifier.
type PostView struct {
	domain.Post
	Author *domain.User `json:"author,omitempty"`
}

// Result is a hydrated batch plus per-identifier warnings for references
// that failed to resolve.
type Result struct {
	Posts    []PostView `json:"posts"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Hydrator resolves user references through the key-value store with a
// bounded number of concurrent lookups.
type Hydrator struct {
	store       store.KeyedStore
	maxInFlight int
	logger      *zap.Logger
}

// New creates a hydrator. maxInFlight bounds concurrent store lookups.
func New(keyedStore store.KeyedStore, maxInFlight int, logger *zap.Logger) *Hydrator {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Hydrator{
		store:       keyedStore,
		maxInFlight: maxInFlight,
		logger:      logger,
	}
}

// HydratePosts replaces each post's user identifier with the full profile.
// Every distinct identifier is resolved exactly once regardless of how many
// posts reference it. A failed resolution only affects the posts referencing
// that identifier; the rest of the batch hydrates normally.
func (h *Hydrator) HydratePosts(ctx context.Context, posts []domain.Post) (*Result, error) {
	subs := make([]string, 0, len(posts))
	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		if p.User != "" && !seen[p.User] {
			seen[p.User] = true
			subs = append(subs, p.User)
		}
	}

	resolved, warnings, err := h.resolveUsers(ctx, subs)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Posts:    make([]PostView, 0, len(posts)),
		Warnings: warnings,
	}
	for _, p := range posts {
		result.Posts = append(result.Posts, PostView{Post: p, Author: resolved[p.User]})
	}
	return result, nil
}

// resolveUsers fetches each sub once, bounded by maxInFlight.
func (h *Hydrator) resolveUsers(ctx context.Context, subs []string) (map[string]*domain.User, []string, error) {
	resolved := make(map[string]*domain.User, len(subs))
	var warnings []string

	semaphore := make(chan struct{}, h.maxInFlight)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, sub := range subs {
		wg.Add(1)
		go func(sub string) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-semaphore }()

			user, err := h.lookupUser(ctx, sub)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("user %s could not be resolved: %v", sub, err))
				if !appErrors.IsNotFound(err) {
					h.logger.Warn("user resolution failed",
						zap.String("sub", sub),
						zap.Error(err),
					)
				}
				return
			}
			resolved[sub] = user
		}(sub)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return resolved, warnings, nil
}

func (h *Hydrator) lookupUser(ctx context.Context, sub string) (*domain.User, error) {
	pk, sk := domain.UserKey(sub)
	item, err := h.store.Get(ctx, pk, sk)
	if err != nil {
		return nil, err
	}
	user, err := domain.DecodeUser(item)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

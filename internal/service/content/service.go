// Package content provides business logic for posts, namespaces, uploads and
// user profiles on top of the key-value store.
package content

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/domain"
	"github.com/obahamonde/cloudantic/internal/hydrate"
	"github.com/obahamonde/cloudantic/internal/store"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// Service defines the content-related business operations.
type Service interface {
	// CreatePost validates and writes a post; the returned string is the
	// sort key the post ended up under.
	CreatePost(ctx context.Context, post domain.Post) (string, error)

	// ListPosts returns one page of a user's posts with authors resolved.
	ListPosts(ctx context.Context, user string, opts store.ListOptions) (*hydrate.Result, string, error)

	// DeletePost removes the exact key; deleting a missing post succeeds.
	DeletePost(ctx context.Context, user, sortKey string) error

	// ListNamespaces returns the namespaces a user's writes have referenced.
	ListNamespaces(ctx context.Context, user string) ([]domain.Namespace, error)

	// ImportUser upserts a trusted identity-provider profile.
	ImportUser(ctx context.Context, user domain.User) error

	// GetUser is the point lookup used by hydration and by clients.
	GetUser(ctx context.Context, sub string) (domain.User, error)

	// CreateUpload records metadata for a blob held in object storage.
	CreateUpload(ctx context.Context, upload domain.Upload) (string, error)

	// ListUploads returns one page of a user's upload records.
	ListUploads(ctx context.Context, user string, opts store.ListOptions) ([]domain.Upload, string, error)
}

type service struct {
	keyedStore store.KeyedStore
	hydrator   *hydrate.Hydrator
	logger     *zap.Logger
}

// NewService creates the content service.
func NewService(keyedStore store.KeyedStore, hydrator *hydrate.Hydrator, logger *zap.Logger) Service {
	return &service{
		keyedStore: keyedStore,
		hydrator:   hydrator,
		logger:     logger,
	}
}

func (s *service) CreatePost(ctx context.Context, post domain.Post) (string, error) {
	pk, sk, item, err := domain.EncodePost(post)
	if err != nil {
		return "", err
	}

	sk, err = s.resolveCollision(ctx, pk, sk)
	if err != nil {
		return "", err
	}

	if err := s.keyedStore.Put(ctx, pk, sk, item); err != nil {
		return "", err
	}

	if post.Namespace != "" {
		if err := s.ensureNamespace(ctx, post.User, post.Namespace); err != nil {
			// The post itself is durable; a failed namespace upsert only
			// degrades the namespace listing.
			s.logger.Warn("namespace upsert failed",
				zap.String("user", post.User),
				zap.String("namespace", post.Namespace),
				zap.Error(err),
			)
		}
	}
	return sk, nil
}

// resolveCollision appends a disambiguating suffix when the derived sort key
// is already taken, keeping sort keys unique within the partition instead of
// silently overwriting the earlier item.
func (s *service) resolveCollision(ctx context.Context, pk, sk string) (string, error) {
	_, err := s.keyedStore.Get(ctx, pk, sk)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return sk, nil
		}
		return "", err
	}
	return domain.WithSuffix(sk, uuid.New().String()[:8]), nil
}

func (s *service) ensureNamespace(ctx context.Context, user, name string) error {
	pk := domain.NamespacePartition(user)
	if _, err := s.keyedStore.Get(ctx, pk, name); err == nil {
		return nil
	} else if !appErrors.IsNotFound(err) {
		return err
	}

	pk, sk, item, err := domain.EncodeNamespace(domain.Namespace{
		User:      user,
		Name:      name,
		CreatedAt: domain.Timestamp(time.Now()),
	})
	if err != nil {
		return err
	}
	return s.keyedStore.Put(ctx, pk, sk, item)
}

func (s *service) ListPosts(ctx context.Context, user string, opts store.ListOptions) (*hydrate.Result, string, error) {
	page, err := s.keyedStore.List(ctx, domain.PostPartition(user), opts)
	if err != nil {
		return nil, "", err
	}

	posts := make([]domain.Post, 0, len(page.Items))
	for _, item := range page.Items {
		post, err := domain.DecodePost(item)
		if err != nil {
			return nil, "", err
		}
		posts = append(posts, post)
	}

	result, err := s.hydrator.HydratePosts(ctx, posts)
	if err != nil {
		return nil, "", err
	}
	return result, page.Cursor, nil
}

func (s *service) DeletePost(ctx context.Context, user, sortKey string) error {
	return s.keyedStore.Delete(ctx, domain.PostPartition(user), sortKey)
}

func (s *service) ListNamespaces(ctx context.Context, user string) ([]domain.Namespace, error) {
	page, err := s.keyedStore.List(ctx, domain.NamespacePartition(user), store.ListOptions{})
	if err != nil {
		return nil, err
	}

	namespaces := make([]domain.Namespace, 0, len(page.Items))
	for _, item := range page.Items {
		ns, err := domain.DecodeNamespace(item)
		if err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, nil
}

func (s *service) ImportUser(ctx context.Context, user domain.User) error {
	if user.UpdatedAt == "" {
		user.UpdatedAt = domain.Timestamp(time.Now())
	}
	pk, sk, item, err := domain.EncodeUser(user)
	if err != nil {
		return err
	}
	return s.keyedStore.Put(ctx, pk, sk, item)
}

func (s *service) GetUser(ctx context.Context, sub string) (domain.User, error) {
	pk, sk := domain.UserKey(sub)
	item, err := s.keyedStore.Get(ctx, pk, sk)
	if err != nil {
		return domain.User{}, err
	}
	return domain.DecodeUser(item)
}

func (s *service) CreateUpload(ctx context.Context, upload domain.Upload) (string, error) {
	pk, sk, item, err := domain.EncodeUpload(upload)
	if err != nil {
		return "", err
	}

	sk, err = s.resolveCollision(ctx, pk, sk)
	if err != nil {
		return "", err
	}

	if err := s.keyedStore.Put(ctx, pk, sk, item); err != nil {
		return "", err
	}

	if upload.Namespace != "" {
		if err := s.ensureNamespace(ctx, upload.User, upload.Namespace); err != nil {
			s.logger.Warn("namespace upsert failed",
				zap.String("user", upload.User),
				zap.String("namespace", upload.Namespace),
				zap.Error(err),
			)
		}
	}
	return sk, nil
}

func (s *service) ListUploads(ctx context.Context, user string, opts store.ListOptions) ([]domain.Upload, string, error) {
	page, err := s.keyedStore.List(ctx, domain.UploadPartition(user), opts)
	if err != nil {
		return nil, "", err
	}

	uploads := make([]domain.Upload, 0, len(page.Items))
	for _, item := range page.Items {
		upload, err := domain.DecodeUpload(item)
		if err != nil {
			return nil, "", err
		}
		uploads = append(uploads, upload)
	}
	return uploads, page.Cursor, nil
}

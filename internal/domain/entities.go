// Package domain defines the persisted entities and the codec that maps them
// onto the partitioned key-value store.
package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// User is an identity-provider profile. Immutable except by re-import; never
// deleted by this service.
type User struct {
	Sub           string `json:"sub" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Locale        string `json:"locale,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Namespace is a logical grouping label for a user's documents. Namespaces
// are derived records, upserted when a post or upload first references them.
type Namespace struct {
	User      string `json:"user" validate:"required"`
	Name      string `json:"namespace" validate:"required"`
	CreatedAt string `json:"created_at" validate:"required"`
}

// Post is a document owned by a user, optionally grouped in a namespace.
// The User field always holds the bare identifier in the persisted form;
// hydration into a full profile happens at read time only.
type Post struct {
	User      string `json:"user" validate:"required"`
	Namespace string `json:"namespace,omitempty"`
	Title     string `json:"title" validate:"required"`
	Content   string `json:"content" validate:"required"`
	CreatedAt string `json:"created_at" validate:"required"`
}

// Upload holds metadata for a blob kept in external object storage; only the
// key travels through this service, never the content.
type Upload struct {
	User        string `json:"user" validate:"required"`
	Namespace   string `json:"namespace,omitempty"`
	Key         string `json:"key" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size"`
	Pages       int    `json:"pages,omitempty"`
	CreatedAt   string `json:"created_at" validate:"required"`
}

// Message is one entry in a chat exchange. Messages are not independently
// keyed; they persist as an ordered list inside a ChatHistory record.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ChatHistory is the per-user chat session record, newest message first.
type ChatHistory struct {
	User      string    `json:"user" validate:"required"`
	Messages  []Message `json:"messages"`
	UpdatedAt string    `json:"updated_at,omitempty"`
}

// Timestamp renders t in the canonical wire format for sort keys.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

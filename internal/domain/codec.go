package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/obahamonde/cloudantic/internal/store"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// Separator joins the fields of a composite sort key. Values carrying it are
// rejected up front so keys parse unambiguously on read.
const Separator = ","

// Entity kind prefixes keep different record types apart inside the shared
// table, mirroring its single-table layout.
const (
	kindUser      = "USER"
	kindNamespace = "NAMESPACE"
	kindPost      = "POST"
	kindUpload    = "UPLOAD"
	kindChat      = "CHAT"

	// userSortKey is the fixed sort key of a profile record; users are
	// point-looked-up by sub alone.
	userSortKey = "PROFILE"

	// chatSortKey is the fixed sort key of the per-user session record.
	chatSortKey = "HISTORY"
)

var validate = validator.New()

// UserPartition returns the partition holding one user's profile.
func UserPartition(sub string) string { return kindUser + "#" + sub }

// NamespacePartition returns the partition holding one user's namespaces.
func NamespacePartition(user string) string { return kindNamespace + "#" + user }

// PostPartition returns the partition holding one user's posts.
func PostPartition(user string) string { return kindPost + "#" + user }

// UploadPartition returns the partition holding one user's upload records.
func UploadPartition(user string) string { return kindUpload + "#" + user }

// ChatPartition returns the partition holding one user's chat session.
func ChatPartition(user string) string { return kindChat + "#" + user }

// UserKey addresses a profile record.
func UserKey(sub string) (string, string) { return UserPartition(sub), userSortKey }

// ChatKey addresses a session record.
func ChatKey(user string) (string, string) { return ChatPartition(user), chatSortKey }

// PostSortKey derives the composite sort key for a post:
// "namespace,created_at" when the namespace is set, the timestamp alone
// otherwise.
func PostSortKey(namespace, createdAt string) string {
	if namespace == "" {
		return createdAt
	}
	return namespace + Separator + createdAt
}

// WithSuffix disambiguates a sort key that would collide with an existing
// item in the same partition.
func WithSuffix(sortKey, suffix string) string {
	return sortKey + Separator + suffix
}

func checkStruct(entity interface{}) error {
	if err := validate.Struct(entity); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			f := fieldErrs[0]
			return appErrors.NewValidation(fmt.Sprintf("field %s failed %s validation", f.Field(), f.Tag()))
		}
		return appErrors.NewValidation(err.Error())
	}
	return nil
}

func checkTimestamp(createdAt string) error {
	if _, err := time.Parse(time.RFC3339, createdAt); err != nil {
		return appErrors.NewValidation("created_at must be an RFC3339 timestamp: " + createdAt)
	}
	return nil
}

func checkSeparator(field, value string) error {
	if strings.Contains(value, Separator) {
		return appErrors.NewValidation(fmt.Sprintf("%s must not contain %q", field, Separator))
	}
	return nil
}

// EncodeUser validates a profile and maps it to its store triple.
func EncodeUser(u User) (string, string, store.Item, error) {
	if err := checkStruct(u); err != nil {
		return "", "", nil, err
	}
	item := store.Item{
		"sub":  u.Sub,
		"name": u.Name,
	}
	putIfSet(item, "email", u.Email)
	if u.EmailVerified {
		item["email_verified"] = true
	}
	putIfSet(item, "given_name", u.GivenName)
	putIfSet(item, "family_name", u.FamilyName)
	putIfSet(item, "nickname", u.Nickname)
	putIfSet(item, "picture", u.Picture)
	putIfSet(item, "locale", u.Locale)
	putIfSet(item, "updated_at", u.UpdatedAt)
	pk, sk := UserKey(u.Sub)
	return pk, sk, item, nil
}

// DecodeUser rebuilds a profile from its store item.
func DecodeUser(item store.Item) (User, error) {
	u := User{
		Sub:           itemString(item, "sub"),
		Name:          itemString(item, "name"),
		Email:         itemString(item, "email"),
		EmailVerified: itemBool(item, "email_verified"),
		GivenName:     itemString(item, "given_name"),
		FamilyName:    itemString(item, "family_name"),
		Nickname:      itemString(item, "nickname"),
		Picture:       itemString(item, "picture"),
		Locale:        itemString(item, "locale"),
		UpdatedAt:     itemString(item, "updated_at"),
	}
	if u.Sub == "" {
		return User{}, appErrors.NewInternal("stored user record is missing its sub", nil)
	}
	return u, nil
}

// EncodeNamespace validates a namespace and maps it to its store triple.
func EncodeNamespace(n Namespace) (string, string, store.Item, error) {
	if err := checkStruct(n); err != nil {
		return "", "", nil, err
	}
	if err := checkSeparator("namespace", n.Name); err != nil {
		return "", "", nil, err
	}
	if err := checkTimestamp(n.CreatedAt); err != nil {
		return "", "", nil, err
	}
	item := store.Item{
		"user":       n.User,
		"namespace":  n.Name,
		"created_at": n.CreatedAt,
	}
	return NamespacePartition(n.User), n.Name, item, nil
}

// DecodeNamespace rebuilds a namespace from its store item.
func DecodeNamespace(item store.Item) (Namespace, error) {
	n := Namespace{
		User:      itemString(item, "user"),
		Name:      itemString(item, "namespace"),
		CreatedAt: itemString(item, "created_at"),
	}
	if n.User == "" || n.Name == "" {
		return Namespace{}, appErrors.NewInternal("stored namespace record is incomplete", nil)
	}
	return n, nil
}

// EncodePost validates a post and maps it to its store triple. The write
// path must reject before the store is touched, so all checks happen here.
func EncodePost(p Post) (string, string, store.Item, error) {
	if err := checkStruct(p); err != nil {
		return "", "", nil, err
	}
	if err := checkSeparator("namespace", p.Namespace); err != nil {
		return "", "", nil, err
	}
	if err := checkTimestamp(p.CreatedAt); err != nil {
		return "", "", nil, err
	}
	item := store.Item{
		"user":       p.User,
		"title":      p.Title,
		"content":    p.Content,
		"created_at": p.CreatedAt,
	}
	putIfSet(item, "namespace", p.Namespace)
	return PostPartition(p.User), PostSortKey(p.Namespace, p.CreatedAt), item, nil
}

// DecodePost rebuilds a post from its store item.
func DecodePost(item store.Item) (Post, error) {
	p := Post{
		User:      itemString(item, "user"),
		Namespace: itemString(item, "namespace"),
		Title:     itemString(item, "title"),
		Content:   itemString(item, "content"),
		CreatedAt: itemString(item, "created_at"),
	}
	if p.User == "" || p.CreatedAt == "" {
		return Post{}, appErrors.NewInternal("stored post record is incomplete", nil)
	}
	return p, nil
}

// EncodeUpload validates upload metadata and maps it to its store triple.
func EncodeUpload(u Upload) (string, string, store.Item, error) {
	if err := checkStruct(u); err != nil {
		return "", "", nil, err
	}
	if err := checkSeparator("namespace", u.Namespace); err != nil {
		return "", "", nil, err
	}
	if err := checkTimestamp(u.CreatedAt); err != nil {
		return "", "", nil, err
	}
	item := store.Item{
		"user":         u.User,
		"key":          u.Key,
		"content_type": u.ContentType,
		"size":         u.Size,
		"created_at":   u.CreatedAt,
	}
	putIfSet(item, "namespace", u.Namespace)
	if u.Pages > 0 {
		item["pages"] = u.Pages
	}
	return UploadPartition(u.User), PostSortKey(u.Namespace, u.CreatedAt), item, nil
}

// DecodeUpload rebuilds upload metadata from its store item.
func DecodeUpload(item store.Item) (Upload, error) {
	u := Upload{
		User:        itemString(item, "user"),
		Namespace:   itemString(item, "namespace"),
		Key:         itemString(item, "key"),
		ContentType: itemString(item, "content_type"),
		Size:        itemInt64(item, "size"),
		Pages:       int(itemInt64(item, "pages")),
		CreatedAt:   itemString(item, "created_at"),
	}
	if u.User == "" || u.Key == "" {
		return Upload{}, appErrors.NewInternal("stored upload record is incomplete", nil)
	}
	return u, nil
}

// EncodeChatHistory maps a session record to its store triple. The caller
// guarantees no pending placeholder is present.
func EncodeChatHistory(h ChatHistory) (string, string, store.Item, error) {
	if err := checkStruct(h); err != nil {
		return "", "", nil, err
	}
	messages := make([]interface{}, 0, len(h.Messages))
	for _, m := range h.Messages {
		entry := map[string]interface{}{
			"role":    string(m.Role),
			"content": m.Content,
		}
		if m.CreatedAt != "" {
			entry["created_at"] = m.CreatedAt
		}
		messages = append(messages, entry)
	}
	item := store.Item{
		"user":     h.User,
		"messages": messages,
	}
	putIfSet(item, "updated_at", h.UpdatedAt)
	pk, sk := ChatKey(h.User)
	return pk, sk, item, nil
}

// DecodeChatHistory rebuilds a session record from its store item.
func DecodeChatHistory(item store.Item) (ChatHistory, error) {
	h := ChatHistory{
		User:      itemString(item, "user"),
		UpdatedAt: itemString(item, "updated_at"),
	}
	if h.User == "" {
		return ChatHistory{}, appErrors.NewInternal("stored chat record is missing its user", nil)
	}
	raw, _ := item["messages"].([]interface{})
	for _, entry := range raw {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return ChatHistory{}, appErrors.NewInternal("stored chat message has an unexpected shape", nil)
		}
		h.Messages = append(h.Messages, Message{
			Role:      Role(stringValue(fields["role"])),
			Content:   stringValue(fields["content"]),
			CreatedAt: stringValue(fields["created_at"]),
		})
	}
	return h, nil
}

// ParsePostSortKey splits a composite post sort key back into its namespace
// and timestamp. Disambiguation suffixes are ignored.
func ParsePostSortKey(sortKey string) (namespace, createdAt string, err error) {
	parts := strings.Split(sortKey, Separator)
	switch len(parts) {
	case 1:
		return "", parts[0], nil
	case 2, 3:
		if _, tsErr := time.Parse(time.RFC3339, parts[0]); tsErr == nil {
			// Bare timestamp plus suffix: no namespace.
			return "", parts[0], nil
		}
		return parts[0], parts[1], nil
	default:
		return "", "", appErrors.NewInternal("ambiguous sort key: "+sortKey, nil)
	}
}

func putIfSet(item store.Item, key, value string) {
	if value != "" {
		item[key] = value
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func itemString(item store.Item, key string) string {
	return stringValue(item[key])
}

func itemBool(item store.Item, key string) bool {
	b, _ := item[key].(bool)
	return b
}

// itemInt64 tolerates the numeric types produced by the different store
// implementations.
func itemInt64(item store.Item, key string) int64 {
	switch v := item[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

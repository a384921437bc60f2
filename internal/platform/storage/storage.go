// Package storage stores receipts and generated PDFs in S3 compatible object storage.
package storage

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotConfigured is returned when no bucket is configured.
	ErrNotConfigured = errors.New("storage: not configured")
	// ErrObjectNotFound is returned when a key does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
)

// Object describes an uploaded object.
type Object struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Storage is the object store used by uploads and attachments.
type Storage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BuildKey composes prefix/<uuid>_<sanitised filename>.
func BuildKey(prefix, filename string) string {
	name := unsafeChars.ReplaceAllString(path.Base(strings.TrimSpace(filename)), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+"_"+name)
}

// Disabled is used when storage credentials are absent.
type Disabled struct{}

// Upload implements Storage.
func (Disabled) Upload(context.Context, string, []byte, string) (Object, error) {
	return Object{}, ErrNotConfigured
}

// Delete implements Storage.
func (Disabled) Delete(context.Context, string) error { return ErrNotConfigured }

// SignedURL implements Storage.
func (Disabled) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrNotConfigured
}

// Get implements Storage.
func (Disabled) Get(context.Context, string) ([]byte, string, error) {
	return nil, "", ErrNotConfigured
}

// KeyResolver is implemented by stores that can map their own URLs back to keys.
type KeyResolver interface {
	KeyFromURL(raw string) (string, bool)
}

// ResolveKey recovers the object key behind raw when s produced it.
func ResolveKey(s Storage, raw string) (string, bool) {
	if r, ok := s.(KeyResolver); ok && raw != "" {
		return r.KeyFromURL(raw)
	}
	return "", false
}

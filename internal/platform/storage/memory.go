package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Storage used in local development and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	// FailUploads makes every upload fail with the given error.
	FailUploads error
}

type memoryObject struct {
	body        []byte
	contentType string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

// Upload implements Storage.
func (m *Memory) Upload(_ context.Context, key string, body []byte, contentType string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUploads != nil {
		return Object{}, m.FailUploads
	}
	m.objects[key] = memoryObject{body: append([]byte(nil), body...), contentType: contentType}
	return Object{Key: key, URL: "memory://" + key, Size: int64(len(body))}, nil
}

// Delete implements Storage.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// SignedURL implements Storage.
func (m *Memory) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrObjectNotFound
	}
	return "memory://" + key + "?ttl=" + ttl.String(), nil
}

// Get implements Storage.
func (m *Memory) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return append([]byte(nil), obj.body...), obj.contentType, nil
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// KeyFromURL implements KeyResolver.
func (m *Memory) KeyFromURL(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "memory://") {
		return "", false
	}
	return strings.TrimPrefix(raw, "memory://"), true
}

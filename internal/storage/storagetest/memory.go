// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/templui/picsellart/internal/storage"
)

// Memory applies the same key rules as the real backends.
type Memory struct {
	mu        sync.Mutex
	objects   map[string][]byte
	publicErr error
	mints     int
}

func New() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

// FailPublic makes every following PutPublic fail with err.
func (m *Memory) FailPublic(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicErr = err
}

func (m *Memory) PutPrivate(_ context.Context, key string, data []byte, _ string) error {
	if err := storage.CheckKey(storage.PrivatePrefix, key); err != nil {
		return err
	}
	return m.Put(key, data)
}

func (m *Memory) PutPublic(_ context.Context, key string, data []byte, _ string) (string, error) {
	if err := storage.CheckKey(storage.PublicPrefix, key); err != nil {
		return "", err
	}
	m.mu.Lock()
	err := m.publicErr
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	if err := m.Put(key, data); err != nil {
		return "", err
	}
	return m.PublicURL(key), nil
}

// Put stores data under key without any namespace checks.
func (m *Memory) Put(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *Memory) MintSignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := storage.CheckKey(storage.PrivatePrefix, key); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", storage.ErrNotFound
	}
	m.mints++
	return fmt.Sprintf("https://signed.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) PublicURL(key string) string {
	if !strings.HasPrefix(key, storage.PublicPrefix) {
		return ""
	}
	return "https://cdn.test/" + key
}

// Object returns the stored bytes for key.
func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// Mints counts successful MintSignedURL calls.
func (m *Memory) Mints() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mints
}

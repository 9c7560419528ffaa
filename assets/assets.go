// Package assets stores binary files embedded in notebooks, such as
// images referenced by image nodes.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("asset not found")

// Object is a stored asset. The caller closes Body.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Store persists assets under generated keys.
type Store interface {
	// Put stores r under a new key for notebookID and returns the key.
	// size may be -1 when unknown.
	Put(ctx context.Context, notebookID, name, contentType string, r io.Reader, size int64) (string, error)
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns notebookID/<uuid><ext>, keeping the lowercased
// extension of name.
func NewKey(notebookID, name string) string {
	return notebookID + "/" + uuid.NewString() + strings.ToLower(path.Ext(name))
}

// NotebookOf returns the notebook part of key.
func NotebookOf(key string) string {
	id, _, _ := strings.Cut(key, "/")
	return id
}

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps assets in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

func (s *MemoryStore) Put(_ context.Context, notebookID, name, contentType string, r io.Reader, size int64) (string, error) {
	if size >= 0 {
		r = io.LimitReader(r, size)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read asset: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("read asset: got %d bytes, want %d", len(data), size)
	}

	key := NewKey(notebookID, name)
	s.mu.Lock()
	s.objects[key] = memObject{data: data, contentType: contentType}
	s.mu.Unlock()
	return key, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", key, ErrNotFound)
	}
	return &Object{
		Key:         key,
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
	}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("asset %q: %w", key, ErrNotFound)
	}
	delete(s.objects, key)
	return nil
}

package store

import (
	"context"
	"sync"
	"time"
)

type notebookRecord struct {
	info    NotebookInfo
	batches []Batch
}

// MemoryStore is an in-memory implementation of NotebookStore.
type MemoryStore struct {
	mu        sync.RWMutex
	notebooks map[string]*notebookRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notebooks: make(map[string]*notebookRecord)}
}

func (s *MemoryStore) Create(_ context.Context, id, title, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notebooks[id]; ok {
		return exists(id)
	}
	now := time.Now()
	s.notebooks[id] = &notebookRecord{
		info: NotebookInfo{
			ID:        id,
			Title:     title,
			Labels:    []string{},
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*NotebookInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.notebooks[id]
	if !ok {
		return nil, notFound(id)
	}
	info := rec.info
	info.Labels = copyLabels(info.Labels)
	return &info, nil
}

// List returns all notebooks ordered by ID.
func (s *MemoryStore) List(_ context.Context) ([]NotebookInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]NotebookInfo, 0, len(s.notebooks))
	for _, rec := range s.notebooks {
		info := rec.info
		info.Labels = copyLabels(info.Labels)
		result = append(result, info)
	}
	sortInfos(result)
	return result, nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id, content string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.notebooks[id]
	if !ok {
		return notFound(id)
	}
	rec.info.Content = content
	rec.info.Version = version
	rec.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetLabels(_ context.Context, id string, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.notebooks[id]
	if !ok {
		return notFound(id)
	}
	rec.info.Labels = copyLabels(labels)
	rec.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AppendBatch(_ context.Context, id string, b Batch, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.notebooks[id]
	if !ok {
		return notFound(id)
	}
	rec.batches = append(rec.batches, b)
	rec.info.Version = version
	rec.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetBatches(_ context.Context, id string, fromVersion int) ([]Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.notebooks[id]
	if !ok {
		return nil, notFound(id)
	}
	if fromVersion < 0 || fromVersion > len(rec.batches) {
		return nil, invalidVersion(fromVersion)
	}
	batches := make([]Batch, len(rec.batches)-fromVersion)
	copy(batches, rec.batches[fromVersion:])
	return batches, nil
}

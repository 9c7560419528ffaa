package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNotFound       = errors.New("notebook not found")
	ErrExists         = errors.New("notebook already exists")
	ErrInvalidVersion = errors.New("invalid version")
)

// NotebookInfo holds notebook metadata and the serialized document.
type NotebookInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Labels    []string  `json:"labels"`
	Content   string    `json:"content,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Batch is one committed update batch in wire form. Replaying the
// batches of a notebook in order from an empty document reproduces its
// content.
type Batch struct {
	ClientID  string            `json:"clientId"`
	Updates   []json.RawMessage `json:"updates"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NotebookStore abstracts notebook persistence. Version n means n
// batches have been committed; batch n is stored at index n-1.
type NotebookStore interface {
	Create(ctx context.Context, id, title, content string) error
	Get(ctx context.Context, id string) (*NotebookInfo, error)
	List(ctx context.Context) ([]NotebookInfo, error)
	UpdateContent(ctx context.Context, id, content string, version int) error
	SetLabels(ctx context.Context, id string, labels []string) error
	AppendBatch(ctx context.Context, id string, b Batch, version int) error
	GetBatches(ctx context.Context, id string, fromVersion int) ([]Batch, error)
}

func notFound(id string) error {
	return fmt.Errorf("notebook %q: %w", id, ErrNotFound)
}

func exists(id string) error {
	return fmt.Errorf("notebook %q: %w", id, ErrExists)
}

func invalidVersion(v int) error {
	return fmt.Errorf("version %d: %w", v, ErrInvalidVersion)
}

func copyLabels(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

func sortInfos(infos []NotebookInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is a Firestore-backed implementation of NotebookStore.
// Each notebook is a document in the "notebooks" collection with its
// batches in a "batches" subcollection keyed by zero-padded index.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: "notebooks",
	}
}

func (s *FirestoreStore) notebookRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) batchCollection(id string) *firestore.CollectionRef {
	return s.notebookRef(id).Collection("batches")
}

func zeroPad(index int) string {
	return fmt.Sprintf("%010d", index)
}

func (s *FirestoreStore) Create(ctx context.Context, id, title, content string) error {
	now := time.Now()
	_, err := s.notebookRef(id).Create(ctx, map[string]interface{}{
		"title":     title,
		"labels":    []string{},
		"content":   content,
		"version":   0,
		"createdAt": now,
		"updatedAt": now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return exists(id)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*NotebookInfo, error) {
	snap, err := s.notebookRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return snapshotToInfo(id, snap), nil
}

func snapshotToInfo(id string, snap *firestore.DocumentSnapshot) *NotebookInfo {
	data := snap.Data()
	title, _ := data["title"].(string)
	content, _ := data["content"].(string)
	version, _ := data["version"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)

	labels := []string{}
	if raw, ok := data["labels"].([]interface{}); ok {
		for _, l := range raw {
			if s, ok := l.(string); ok {
				labels = append(labels, s)
			}
		}
	}
	return &NotebookInfo{
		ID:        id,
		Title:     title,
		Labels:    labels,
		Content:   content,
		Version:   int(version),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (s *FirestoreStore) List(ctx context.Context) ([]NotebookInfo, error) {
	iter := s.client.Collection(s.collection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var result []NotebookInfo
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *snapshotToInfo(snap.Ref.ID, snap))
	}
	return result, nil
}

func (s *FirestoreStore) update(ctx context.Context, id string, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})
	_, err := s.notebookRef(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return notFound(id)
	}
	return err
}

func (s *FirestoreStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	return s.update(ctx, id, []firestore.Update{
		{Path: "content", Value: content},
		{Path: "version", Value: version},
	})
}

func (s *FirestoreStore) SetLabels(ctx context.Context, id string, labels []string) error {
	return s.update(ctx, id, []firestore.Update{
		{Path: "labels", Value: copyLabels(labels)},
	})
}

func (s *FirestoreStore) AppendBatch(ctx context.Context, id string, b Batch, version int) error {
	updates := make([]string, len(b.Updates))
	for i, u := range b.Updates {
		updates[i] = string(u)
	}

	// Batch for version n lives at index n-1, matching MemoryStore's
	// slice semantics where GetBatches(fromVersion) returns batches[fromVersion:].
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.notebookRef(id)
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		if err := tx.Set(s.batchCollection(id).Doc(zeroPad(version-1)), map[string]interface{}{
			"clientId":  b.ClientID,
			"updates":   updates,
			"createdAt": b.CreatedAt,
			"version":   version,
		}); err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "version", Value: version},
			{Path: "updatedAt", Value: time.Now()},
		})
	})
	if status.Code(err) == codes.NotFound {
		return notFound(id)
	}
	return err
}

func (s *FirestoreStore) GetBatches(ctx context.Context, id string, fromVersion int) ([]Batch, error) {
	if fromVersion < 0 {
		return nil, invalidVersion(fromVersion)
	}
	snap, err := s.notebookRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	if fromVersion > snapshotToInfo(id, snap).Version {
		return nil, invalidVersion(fromVersion)
	}

	iter := s.batchCollection(id).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAt(zeroPad(fromVersion)).
		Documents(ctx)
	defer iter.Stop()

	batches := []Batch{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		b, err := snapshotToBatch(snap)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func snapshotToBatch(snap *firestore.DocumentSnapshot) (Batch, error) {
	data := snap.Data()
	raw, ok := data["updates"].([]interface{})
	if !ok {
		return Batch{}, fmt.Errorf("invalid updates field in batch %s", snap.Ref.ID)
	}
	updates := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		s, ok := r.(string)
		if !ok {
			return Batch{}, fmt.Errorf("invalid update %d in batch %s", i, snap.Ref.ID)
		}
		updates[i] = json.RawMessage(s)
	}
	clientID, _ := data["clientId"].(string)
	createdAt, _ := data["createdAt"].(time.Time)
	return Batch{ClientID: clientID, Updates: updates, CreatedAt: createdAt}, nil
}

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alimasry/go-notebook/metrics"
)

// dirtyState tracks what needs flushing for a single notebook.
type dirtyState struct {
	contentDirty   bool // content/version needs writing to backing store
	labelsDirty    bool
	flushedBatches int    // number of batches already flushed (index into batches)
	created        bool   // notebook created locally but not yet in backing store
	gen            uint64 // bumped on every content or label write
}

// CachedStore wraps a backing NotebookStore with an in-memory cache.
// All reads and writes are served from the cache. Dirty notebooks are
// flushed to the backing store periodically in the background.
type CachedStore struct {
	cache         *MemoryStore
	backing       NotebookStore
	log           *zap.Logger
	metrics       *metrics.Metrics
	mu            sync.Mutex
	dirty         map[string]*dirtyState
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

// NewCachedStore creates a CachedStore that caches in memory and flushes
// dirty notebooks to the backing store every flushInterval. m may be nil.
func NewCachedStore(backing NotebookStore, flushInterval time.Duration, log *zap.Logger, m *metrics.Metrics) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		log:           log.Named("cached-store"),
		metrics:       m,
		dirty:         make(map[string]*dirtyState),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(ctx context.Context, id, title, content string) error {
	if _, err := cs.backing.Get(ctx, id); err == nil {
		return exists(id)
	}
	if err := cs.cache.Create(ctx, id, title, content); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.dirty[id] = &dirtyState{contentDirty: true, created: true}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*NotebookInfo, error) {
	info, err := cs.cache.Get(ctx, id)
	if err == nil {
		return info, nil
	}
	// Cache miss, load from backing store.
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Get(ctx, id)
}

// List merges the backing store's notebooks with cached ones, preferring
// the cached copy.
func (cs *CachedStore) List(ctx context.Context) ([]NotebookInfo, error) {
	backed, err := cs.backing.List(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := cs.cache.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cached))
	for _, info := range cached {
		seen[info.ID] = true
	}
	result := cached
	for _, info := range backed {
		if !seen[info.ID] {
			result = append(result, info)
		}
	}
	sortInfos(result)
	return result, nil
}

// touch marks id dirty, creating its state if the notebook was clean.
func (cs *CachedStore) touch(id string, prevBatches int) *dirtyState {
	ds := cs.dirty[id]
	if ds == nil {
		ds = &dirtyState{flushedBatches: prevBatches}
		cs.dirty[id] = ds
	}
	return ds
}

func (cs *CachedStore) batchCount(id string) int {
	cs.cache.mu.RLock()
	defer cs.cache.mu.RUnlock()
	if rec, ok := cs.cache.notebooks[id]; ok {
		return len(rec.batches)
	}
	return 0
}

func (cs *CachedStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	prev := cs.batchCount(id)
	if err := cs.cache.UpdateContent(ctx, id, content, version); err != nil {
		return err
	}
	cs.mu.Lock()
	ds := cs.touch(id, prev)
	ds.contentDirty = true
	ds.gen++
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) SetLabels(ctx context.Context, id string, labels []string) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	prev := cs.batchCount(id)
	if err := cs.cache.SetLabels(ctx, id, labels); err != nil {
		return err
	}
	cs.mu.Lock()
	ds := cs.touch(id, prev)
	ds.labelsDirty = true
	ds.gen++
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) AppendBatch(ctx context.Context, id string, b Batch, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}

	// Snapshot the batch count before appending so a clean notebook
	// records how many batches the backing store already has.
	prev := cs.batchCount(id)
	if err := cs.cache.AppendBatch(ctx, id, b, version); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.touch(id, prev)
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) GetBatches(ctx context.Context, id string, fromVersion int) ([]Batch, error) {
	if _, err := cs.Get(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.GetBatches(ctx, id, fromVersion)
}

// loadFromBacking loads a notebook and its batches from the backing store
// into the cache.
func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return err
	}
	batches, err := cs.backing.GetBatches(ctx, id, 0)
	if err != nil {
		return err
	}

	cs.cache.mu.Lock()
	if _, ok := cs.cache.notebooks[id]; !ok {
		cs.cache.notebooks[id] = &notebookRecord{info: *info, batches: batches}
	}
	cs.cache.mu.Unlock()
	cs.log.Debug("loaded notebook", zap.String("notebook", id), zap.Int("batches", len(batches)))
	return nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flush()
		case <-cs.stop:
			cs.flush()
			return
		}
	}
}

func (cs *CachedStore) flushFailed(id, what string, err error) {
	cs.metrics.FlushError()
	cs.log.Warn("flush failed", zap.String("notebook", id), zap.String("what", what), zap.Error(err))
}

// flush writes all dirty notebooks to the backing store.
func (cs *CachedStore) flush() {
	cs.mu.Lock()
	snapshot := make(map[string]dirtyState, len(cs.dirty))
	for id, ds := range cs.dirty {
		snapshot[id] = *ds
	}
	cs.mu.Unlock()

	ctx := context.Background()

	for id, ds := range snapshot {
		cs.cache.mu.RLock()
		rec, ok := cs.cache.notebooks[id]
		if !ok {
			cs.cache.mu.RUnlock()
			continue
		}
		info := rec.info
		info.Labels = copyLabels(info.Labels)
		var pending []Batch
		if ds.flushedBatches < len(rec.batches) {
			pending = make([]Batch, len(rec.batches)-ds.flushedBatches)
			copy(pending, rec.batches[ds.flushedBatches:])
		}
		cs.cache.mu.RUnlock()

		// 1. Create notebook in backing store if needed.
		if ds.created {
			err := cs.backing.Create(ctx, id, info.Title, "")
			if err != nil && !errors.Is(err, ErrExists) {
				cs.flushFailed(id, "create", err)
				continue
			}
			ds.created = false
		}

		// 2. Flush batches before content, so the log can always replay.
		for _, b := range pending {
			version := ds.flushedBatches + 1
			if err := cs.backing.AppendBatch(ctx, id, b, version); err != nil {
				cs.flushFailed(id, "batch", err)
				break
			}
			ds.flushedBatches++
		}

		// 3. Flush content and labels.
		if ds.contentDirty {
			if err := cs.backing.UpdateContent(ctx, id, info.Content, info.Version); err != nil {
				cs.flushFailed(id, "content", err)
			} else {
				ds.contentDirty = false
			}
		}
		if ds.labelsDirty {
			if err := cs.backing.SetLabels(ctx, id, info.Labels); err != nil {
				cs.flushFailed(id, "labels", err)
			} else {
				ds.labelsDirty = false
			}
		}

		cs.mu.Lock()
		if cur := cs.dirty[id]; cur != nil {
			cur.flushedBatches = ds.flushedBatches
			cur.created = cur.created && ds.created
			// Writes after the snapshot keep their flags set.
			if cur.gen == ds.gen {
				cur.contentDirty = cur.contentDirty && ds.contentDirty
				cur.labelsDirty = cur.labelsDirty && ds.labelsDirty
			}
			if !cur.contentDirty && !cur.labelsDirty && !cur.created && cur.flushedBatches >= cs.batchCount(id) {
				delete(cs.dirty, id)
			}
		}
		cs.mu.Unlock()
	}
}

// Close signals the flush loop to perform a final flush and waits for it
// to complete.
func (cs *CachedStore) Close() {
	cs.closeOnce.Do(func() { close(cs.stop) })
	<-cs.done
}

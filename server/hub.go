package server

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/alimasry/go-notebook/doc"
	"github.com/alimasry/go-notebook/metrics"
	"github.com/alimasry/go-notebook/store"
)

type joinRequest struct {
	client     *Client
	notebookID string
}

// Hub manages notebook sessions and routes clients to the right session.
type Hub struct {
	store    store.NotebookStore
	schema   *doc.Schema
	log      *zap.Logger
	metrics  *metrics.Metrics
	sessions map[string]*Session
	mu       sync.RWMutex
	// wg tracks session goroutines.
	wg sync.WaitGroup

	joinDoc chan joinRequest
}

// NewHub creates a hub over st. m may be nil.
func NewHub(st store.NotebookStore, log *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		store:    st,
		schema:   doc.DefaultSchema(),
		log:      log.Named("hub"),
		metrics:  m,
		sessions: make(map[string]*Session),
		joinDoc:  make(chan joinRequest, 64),
	}
}

// Run is the hub's main loop. When ctx is done it stops all sessions and
// returns once their goroutines have exited, so a batch being persisted
// is finished before the store is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case req := <-h.joinDoc:
			h.handleJoinDoc(ctx, req)
		case <-ctx.Done():
			h.stopSessions()
			h.wg.Wait()
			return
		}
	}
}

// CreateNotebook stores a new notebook holding an empty document.
func (h *Hub) CreateNotebook(ctx context.Context, id, title string) (*store.NotebookInfo, error) {
	content, err := doc.MarshalNode(h.schema.EmptyDoc())
	if err != nil {
		return nil, err
	}
	if err := h.store.Create(ctx, id, title, string(content)); err != nil {
		return nil, err
	}
	return h.store.Get(ctx, id)
}

func (h *Hub) handleJoinDoc(ctx context.Context, req joinRequest) {
	h.mu.Lock()
	s, ok := h.sessions[req.notebookID]
	if !ok {
		var err error
		if s, err = h.startSession(ctx, req.notebookID); err != nil {
			h.mu.Unlock()
			h.log.Error("start session", zap.String("notebook", req.notebookID), zap.Error(err))
			req.client.sendError("failed to load notebook")
			return
		}
	}
	h.mu.Unlock()

	s.join <- req.client
}

// startSession loads the notebook, creating it if missing. Callers hold h.mu.
func (h *Hub) startSession(ctx context.Context, id string) (*Session, error) {
	info, err := h.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		info, err = h.CreateNotebook(ctx, id, "")
	}
	if err != nil {
		return nil, err
	}
	st, err := loadState(h.schema, info.Content)
	if err != nil {
		return nil, err
	}

	s := newSession(info, st, h.store, h.log.Named("session"), h.metrics)
	h.sessions[id] = s
	h.metrics.SessionStarted()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		s.Run()
	}()
	return s, nil
}

func (h *Hub) stopSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		close(s.stop)
		delete(h.sessions, id)
		h.metrics.SessionStopped()
	}
}

// GetSession returns the session for a notebook, if active.
func (h *Hub) GetSession(notebookID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[notebookID]
}

// ActiveSessions returns the number of running sessions.
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alimasry/go-notebook/doc"
	"github.com/alimasry/go-notebook/metrics"
	"github.com/alimasry/go-notebook/store"
	"github.com/alimasry/go-notebook/update"
)

// cellTypes are the node types labelled in doc messages.
var cellTypes = []string{"placeholder", "output"}

type batchMessage struct {
	client *Client
	msg    ClientMessage
}

// Session manages collaboration for a single notebook.
// All batches are serialized through a single goroutine.
type Session struct {
	notebookID string
	state      *doc.State
	revision   int
	// lastEditor is the client whose batch was committed last.
	lastEditor string

	store   store.NotebookStore
	log     *zap.Logger
	metrics *metrics.Metrics
	clients map[*Client]bool
	now     func() time.Time

	incoming chan batchMessage
	join     chan *Client
	leave    chan *Client
	stop     chan struct{}
}

// loadState decodes stored content, or starts from an empty notebook.
func loadState(schema *doc.Schema, content string) (*doc.State, error) {
	d := schema.EmptyDoc()
	if content != "" {
		var err error
		if d, err = schema.NodeFromJSON([]byte(content)); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
	}
	return doc.NewState(schema, d)
}

func newSession(info *store.NotebookInfo, st *doc.State, ns store.NotebookStore, log *zap.Logger, m *metrics.Metrics) *Session {
	return &Session{
		notebookID: info.ID,
		state:      st,
		revision:   info.Version,
		store:      ns,
		log:        log.With(zap.String("notebook", info.ID)),
		metrics:    m,
		clients:    make(map[*Client]bool),
		now:        time.Now,
		incoming:   make(chan batchMessage, 64),
		join:       make(chan *Client, 16),
		leave:      make(chan *Client, 16),
		stop:       make(chan struct{}),
	}
}

// Run is the session's main loop. It serializes all batches.
func (s *Session) Run() {
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case bm := <-s.incoming:
			s.handleBatch(bm)
		case <-s.stop:
			s.disconnectAll()
			return
		}
	}
}

// sessionView receives the committed state of a batch.
type sessionView struct {
	s      *Session
	client *Client
}

func (v sessionView) Focus() {
	v.s.lastEditor = v.client.ID
}

func (v sessionView) UpdateState(st *doc.State) {
	v.s.state = st
}

func (s *Session) handleJoin(c *Client) {
	s.clients[c] = true
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	// Send current notebook state to the joining client.
	msg := s.docMessage()
	msg.Clients = s.clientInfos()
	c.sendMsg(msg)

	// Notify other clients about the new user.
	for other := range s.clients {
		if other != c {
			other.sendMsg(ServerMessage{
				Type:     MsgJoin,
				ClientID: c.ID,
				Name:     c.Name,
				Color:    c.Color,
			})
		}
	}
	s.log.Debug("client joined", zap.String("client", c.ID), zap.Int("clients", len(s.clients)))
}

func (s *Session) handleLeave(c *Client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	c.detach()

	// Notify others.
	for other := range s.clients {
		other.sendMsg(ServerMessage{
			Type:     MsgLeave,
			ClientID: c.ID,
		})
	}
	s.log.Debug("client left", zap.String("client", c.ID))
}

func (s *Session) disconnectAll() {
	for c := range s.clients {
		c.detach()
	}
	s.clients = make(map[*Client]bool)
}

func (s *Session) reject(c *Client, result, reason string) {
	s.metrics.Batch(result)
	c.sendMsg(ServerMessage{
		Type:     MsgRejected,
		Revision: s.revision,
		Message:  reason,
	})
}

func (s *Session) handleBatch(bm batchMessage) {
	log := s.log.With(zap.String("client", bm.client.ID), zap.Int("revision", bm.msg.Revision))

	// Batches are built against a known revision; anything else is stale.
	if bm.msg.Revision != s.revision {
		log.Debug("stale batch", zap.Int("current", s.revision))
		s.reject(bm.client, metrics.ResultStale, "stale revision")
		return
	}

	updates, err := update.DecodeAll(s.state.Schema(), bm.msg.Updates)
	if err != nil {
		log.Debug("undecodable batch", zap.Error(err))
		s.metrics.Batch(metrics.ResultInvalid)
		bm.client.sendError(err.Error())
		return
	}

	// The batch time is stored with the batch and drives undo grouping, so
	// replaying the log rebuilds the same history. Millisecond precision
	// survives every store.
	at := s.now().Truncate(time.Millisecond)
	if !update.ApplyAt(s.state, updates, sessionView{s: s, client: bm.client}, at) {
		log.Debug("batch rejected", zap.Int("updates", len(updates)))
		s.reject(bm.client, metrics.ResultRejected, "batch rejected")
		return
	}
	s.revision++
	s.metrics.Batch(metrics.ResultApplied)
	for _, u := range updates {
		s.metrics.Update(update.Kind(u))
	}

	s.persist(bm, at)

	// Ack the sender.
	bm.client.sendMsg(ServerMessage{
		Type:      MsgAck,
		Revision:  s.revision,
		Selection: s.selectionInfo(),
	})

	// Broadcast to other clients.
	msg := s.docMessage()
	msg.ClientID = bm.client.ID
	for c := range s.clients {
		if c != bm.client {
			c.sendMsg(msg)
		}
	}
}

// persist writes the batch before the content snapshot, so the log can
// always reproduce the snapshot.
func (s *Session) persist(bm batchMessage, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch := store.Batch{
		ClientID:  bm.client.ID,
		Updates:   bm.msg.Updates,
		CreatedAt: at,
	}
	if err := s.store.AppendBatch(ctx, s.notebookID, batch, s.revision); err != nil {
		s.log.Error("append batch", zap.Int("revision", s.revision), zap.Error(err))
	}
	if err := s.store.UpdateContent(ctx, s.notebookID, s.contentString(), s.revision); err != nil {
		s.log.Error("update content", zap.Int("revision", s.revision), zap.Error(err))
	}
}

func (s *Session) content() json.RawMessage {
	data, err := doc.MarshalNode(s.state.Doc())
	if err != nil {
		s.log.Error("encode content", zap.Error(err))
		return nil
	}
	return data
}

func (s *Session) contentString() string {
	return string(s.content())
}

func (s *Session) selectionInfo() *SelectionInfo {
	sel := s.state.Selection()
	return &SelectionInfo{Anchor: sel.Anchor, Head: sel.Head, Node: sel.IsNode()}
}

func (s *Session) docMessage() ServerMessage {
	return ServerMessage{
		Type:       MsgDoc,
		NotebookID: s.notebookID,
		Content:    s.content(),
		Revision:   s.revision,
		Selection:  s.selectionInfo(),
		VisualIDs:  doc.VisualIDs(s.state.Doc(), cellTypes...),
		ClientID:   s.lastEditor,
	}
}

func (s *Session) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, len(s.clients))
	for c := range s.clients {
		infos = append(infos, c.Info())
	}
	return infos
}

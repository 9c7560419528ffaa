package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alimasry/go-notebook/doc"
	"github.com/alimasry/go-notebook/store"
	"github.com/alimasry/go-notebook/update"
)

func ctx() context.Context { return context.Background() }

var schema = doc.DefaultSchema()

// sampleContent is doc(p("abc"), placeholder, p("de")) with the
// placeholder at position 5.
func sampleContent(t *testing.T) string {
	t.Helper()
	d := schema.MustNode("doc", nil,
		schema.MustNode("paragraph", nil, schema.Text("abc")),
		schema.MustNode("placeholder", doc.Attrs{"id": "cell-1"}),
		schema.MustNode("paragraph", nil, schema.Text("de")),
	)
	data, err := doc.MarshalNode(d)
	require.NoError(t, err)
	return string(data)
}

const (
	replaceCell = `{"type":"replaceNode","pos":5,"target":{"type":"placeholder","attrs":{"id":"cell-1"}},"node":{"type":"output","attrs":{"id":"cell-1"}}}`
	cursorAt4   = `{"type":"setSelection","anchor":4,"head":4}`
	insertTab   = `{"type":"insertText","text":"\t"}`
)

func raws(updates ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(updates))
	for i, u := range updates {
		out[i] = json.RawMessage(u)
	}
	return out
}

// mockClient creates a client without a real WebSocket connection, for testing.
func mockClient(id string) *Client {
	return &Client{
		ID:    id,
		Name:  "Test " + id,
		Color: "#000000",
		send:  make(chan []byte, 256),
		log:   zap.NewNop(),
	}
}

// recvMsg reads one message from a mock client's send channel with timeout.
func recvMsg(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return ServerMessage{}
	}
}

func startSession(t *testing.T, st store.NotebookStore, id string) *Session {
	t.Helper()
	info, err := st.Get(ctx(), id)
	require.NoError(t, err)
	state, err := loadState(schema, info.Content)
	require.NoError(t, err)
	s := newSession(info, state, st, zap.NewNop(), nil)
	go s.Run()
	return s
}

// setupSession starts a session over the sample notebook with two joined
// clients whose join traffic has been drained.
func setupSession(t *testing.T) (*Session, store.NotebookStore, *Client, *Client) {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx(), "nb1", "Sample", sampleContent(t)))
	s := startSession(t, st, "nb1")
	t.Cleanup(func() { close(s.stop) })

	c1 := mockClient("c1")
	c2 := mockClient("c2")
	s.join <- c1
	s.join <- c2
	recvMsg(t, c1) // doc
	recvMsg(t, c2) // doc
	recvMsg(t, c1) // c2 join notification
	return s, st, c1, c2
}

func sendBatch(s *Session, c *Client, revision int, updates ...string) {
	s.incoming <- batchMessage{client: c, msg: ClientMessage{Type: MsgBatch, NotebookID: s.notebookID, Revision: revision, Updates: raws(updates...)}}
}

func TestSession_JoinAndReceiveDoc(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx(), "nb1", "", sampleContent(t)))
	s := startSession(t, st, "nb1")
	defer close(s.stop)

	c := mockClient("c1")
	s.join <- c
	msg := recvMsg(t, c)

	assert.Equal(t, MsgDoc, msg.Type)
	assert.Equal(t, "nb1", msg.NotebookID)
	assert.JSONEq(t, sampleContent(t), string(msg.Content))
	assert.Equal(t, 0, msg.Revision)
	assert.Equal(t, map[int]string{5: "1"}, msg.VisualIDs)
	require.Len(t, msg.Clients, 1)
	assert.Equal(t, "c1", msg.Clients[0].ID)
}

func TestSession_BatchAppliedAndBroadcast(t *testing.T) {
	s, st, c1, c2 := setupSession(t)

	sendBatch(s, c1, 0, replaceCell, cursorAt4, insertTab)

	ack := recvMsg(t, c1)
	require.Equal(t, MsgAck, ack.Type, ack.Message)
	assert.Equal(t, 1, ack.Revision)
	require.NotNil(t, ack.Selection)
	assert.Equal(t, 5, ack.Selection.Head)

	broadcast := recvMsg(t, c2)
	require.Equal(t, MsgDoc, broadcast.Type)
	assert.Equal(t, 1, broadcast.Revision)
	assert.Equal(t, "c1", broadcast.ClientID)
	assert.Equal(t, map[int]string{6: "1"}, broadcast.VisualIDs)

	final, err := schema.NodeFromJSON(broadcast.Content)
	require.NoError(t, err)
	assert.Equal(t, "abc\t", final.MaybeChild(0).TextContent())
	assert.Equal(t, "output", doc.NodeAt(final, 6).Type.Name)

	info, err := st.Get(ctx(), "nb1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Version)
	assert.JSONEq(t, string(broadcast.Content), info.Content)

	batches, err := st.GetBatches(ctx(), "nb1", 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "c1", batches[0].ClientID)
	assert.Len(t, batches[0].Updates, 3)
}

func TestSession_StaleRevision(t *testing.T) {
	s, st, c1, c2 := setupSession(t)

	sendBatch(s, c1, 0, insertTab)
	recvMsg(t, c1) // ack
	recvMsg(t, c2) // doc

	// c2 still believes the notebook is at revision 0.
	sendBatch(s, c2, 0, insertTab)
	msg := recvMsg(t, c2)
	assert.Equal(t, MsgRejected, msg.Type)
	assert.Equal(t, 1, msg.Revision)

	info, err := st.Get(ctx(), "nb1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Version)
}

func TestSession_RejectedBatchChangesNothing(t *testing.T) {
	s, st, c1, c2 := setupSession(t)
	before := s.state

	// The second update fails: the cell was already replaced by the first.
	sendBatch(s, c1, 0, replaceCell, replaceCell)
	msg := recvMsg(t, c1)
	assert.Equal(t, MsgRejected, msg.Type)
	assert.Equal(t, 0, msg.Revision)

	// Round-trip through the session so the state read below is settled.
	sendBatch(s, c1, 5)
	recvMsg(t, c1)

	assert.Same(t, before, s.state)
	assert.Empty(t, c2.send)
	info, err := st.Get(ctx(), "nb1")
	require.NoError(t, err)
	assert.Equal(t, 0, info.Version)
	assert.JSONEq(t, sampleContent(t), info.Content)
}

func TestSession_InvalidBatch(t *testing.T) {
	s, _, c1, _ := setupSession(t)

	sendBatch(s, c1, 0, `{"type":"explode"}`)
	msg := recvMsg(t, c1)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Message, "update 0")
}

func TestSession_UndoKeepsReplacedCell(t *testing.T) {
	s, _, c1, c2 := setupSession(t)

	sendBatch(s, c1, 0, replaceCell, cursorAt4, insertTab)
	recvMsg(t, c1)
	recvMsg(t, c2)

	sendBatch(s, c2, 1, `{"type":"undo"}`)
	ack := recvMsg(t, c2)
	require.Equal(t, MsgAck, ack.Type)
	msg := recvMsg(t, c1)
	require.Equal(t, MsgDoc, msg.Type)

	d, err := schema.NodeFromJSON(msg.Content)
	require.NoError(t, err)
	assert.Equal(t, "abc", d.MaybeChild(0).TextContent())
	assert.Equal(t, "output", doc.NodeAt(d, 5).Type.Name, "replaceNode is not part of undo history")
}

func TestSession_LeaveNotification(t *testing.T) {
	s, _, c1, c2 := setupSession(t)

	s.leave <- c2
	msg := recvMsg(t, c1)
	assert.Equal(t, MsgLeave, msg.Type)
	assert.Equal(t, "c2", msg.ClientID)

	_, ok := <-c2.send
	assert.False(t, ok, "send channel closed on leave")
}

func TestSession_StopDisconnectsClients(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx(), "nb1", "", ""))
	s := startSession(t, st, "nb1")

	c := mockClient("c1")
	s.join <- c
	recvMsg(t, c)
	close(s.stop)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.closed && c.session == nil
	}, time.Second, 10*time.Millisecond)
	assert.NotPanics(t, func() { c.sendError("late") })
}

func TestLoadState(t *testing.T) {
	st, err := loadState(schema, "")
	require.NoError(t, err)
	assert.True(t, st.Doc().Eq(schema.EmptyDoc()))

	_, err = loadState(schema, `{"type":"nope"}`)
	assert.Error(t, err)
}

func TestSession_BatchLogReplaysToContent(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx(), "nb1", "", sampleContent(t)))
	info, err := st.Get(ctx(), "nb1")
	require.NoError(t, err)
	state, err := loadState(schema, info.Content)
	require.NoError(t, err)

	// b follows a within the group delay; c starts a new undo group.
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	clock := []time.Time{t0, t0.Add(100 * time.Millisecond), t0.Add(time.Second), t0.Add(2 * time.Second)}
	s := newSession(info, state, st, zap.NewNop(), nil)
	s.now = func() time.Time {
		now := clock[0]
		clock = clock[1:]
		return now
	}
	go s.Run()
	defer close(s.stop)

	c := mockClient("c1")
	s.join <- c
	recvMsg(t, c)

	batches := [][]string{
		{cursorAt4, `{"type":"insertText","text":"a"}`},
		{`{"type":"insertText","text":"b"}`},
		{`{"type":"insertText","text":"c"}`},
		{`{"type":"undo"}`},
	}
	for i, b := range batches {
		sendBatch(s, c, i, b...)
		require.Equal(t, MsgAck, recvMsg(t, c).Type, "batch %d", i)
	}

	stored, err := st.GetBatches(ctx(), "nb1", 0)
	require.NoError(t, err)
	require.Len(t, stored, len(batches))
	assert.Equal(t, t0.Truncate(time.Millisecond), stored[0].CreatedAt.UTC())

	replayed, err := loadState(schema, sampleContent(t))
	require.NoError(t, err)
	for i, b := range stored {
		updates, err := update.DecodeAll(schema, b.Updates)
		require.NoError(t, err)
		var ok bool
		replayed, ok = update.FoldAt(replayed, updates, b.CreatedAt)
		require.True(t, ok, "batch %d", i)
	}

	info, err = st.Get(ctx(), "nb1")
	require.NoError(t, err)
	content, err := schema.NodeFromJSON([]byte(info.Content))
	require.NoError(t, err)
	assert.Equal(t, "abcab", content.MaybeChild(0).TextContent(), "undo removes c only")
	assert.True(t, replayed.Doc().Eq(content), "replayed %s, stored %s", replayed.Doc(), content)
}

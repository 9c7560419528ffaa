package doc

import (
	"fmt"
	"time"

	"github.com/cozy/prosemirror-go/model"
)

// State is an immutable editor state. Applying a transaction produces a
// new State; the old one stays valid.
type State struct {
	schema    *Schema
	doc       *model.Node
	selection Selection
	history   *History
}

// NewState creates a state for d with the cursor at the start of the first
// textblock and empty history.
func NewState(schema *Schema, d *model.Node) (*State, error) {
	if d == nil || d.Type != schema.top {
		return nil, fmt.Errorf("root must be a %s node: %w", schema.top.Name, ErrInvalidContent)
	}
	if err := check(d); err != nil {
		return nil, err
	}
	return &State{schema: schema, doc: d, selection: atStart(d), history: &History{}}, nil
}

func (s *State) Schema() *Schema      { return s.schema }
func (s *State) Doc() *model.Node     { return s.doc }
func (s *State) Selection() Selection { return s.selection }
func (s *State) History() *History    { return s.history }

// Tr starts a transaction on this state.
func (s *State) Tr() *Transaction {
	return &Transaction{base: s, doc: s.doc, selection: s.selection, time: time.Now()}
}

// Apply returns the state that results from tr.
func (s *State) Apply(tr *Transaction) (*State, error) {
	if tr == nil || tr.base != s {
		return nil, ErrMismatchedState
	}
	return &State{
		schema:    s.schema,
		doc:       tr.doc,
		selection: tr.selection,
		history:   s.history.apply(tr),
	}, nil
}

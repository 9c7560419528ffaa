package update

import (
	"github.com/cozy/prosemirror-go/model"

	"github.com/alimasry/go-notebook/doc"
)

// ReplaceNode swaps the node at Pos for Replacement, provided the node
// there still equals Target. The change is kept out of undo history: once a
// computed result lands it cannot be undone back to its placeholder.
type ReplaceNode struct {
	Pos         int
	Target      *model.Node
	Replacement *model.Node
}

func (u ReplaceNode) Update(_ *doc.State, tr *doc.Transaction) (*doc.Transaction, bool) {
	if u.Target == nil || u.Replacement == nil {
		return nil, false
	}
	if cur := doc.NodeAt(tr.Doc(), u.Pos); cur == nil || !cur.Eq(u.Target) {
		return nil, false
	}
	sel, err := doc.NodeSelection(tr.Doc(), u.Pos)
	if err != nil {
		return nil, false
	}
	if err := tr.SetSelection(sel); err != nil {
		return nil, false
	}
	if err := tr.ReplaceSelectionWith(u.Replacement); err != nil {
		return nil, false
	}
	tr.SetMeta(doc.MetaAddToHistory, false)
	return tr, true
}

// InsertText inserts literal text over the current selection.
type InsertText struct {
	Text string
}

func (u InsertText) Update(_ *doc.State, tr *doc.Transaction) (*doc.Transaction, bool) {
	if err := tr.InsertText(u.Text); err != nil {
		return nil, false
	}
	return tr, true
}

// Replace replaces [From, To) with Content.
type Replace struct {
	From    int
	To      int
	Content []*model.Node
}

func (u Replace) Update(_ *doc.State, tr *doc.Transaction) (*doc.Transaction, bool) {
	if err := tr.Replace(u.From, u.To, u.Content...); err != nil {
		return nil, false
	}
	return tr, true
}

// SetSelection moves the selection. With Node set, the node starting at
// Anchor is selected and Head is ignored.
type SetSelection struct {
	Anchor int
	Head   int
	Node   bool
}

func (u SetSelection) Update(_ *doc.State, tr *doc.Transaction) (*doc.Transaction, bool) {
	sel := doc.TextSelection(u.Anchor, u.Head)
	if u.Node {
		var err error
		if sel, err = doc.NodeSelection(tr.Doc(), u.Anchor); err != nil {
			return nil, false
		}
	}
	if err := tr.SetSelection(sel); err != nil {
		return nil, false
	}
	return tr, true
}

// Undo reverts the last undo group. It rejects when history is empty.
type Undo struct{}

func (Undo) Update(st *doc.State, tr *doc.Transaction) (*doc.Transaction, bool) {
	undo, ok := doc.Undo(st)
	if !ok {
		return nil, false
	}
	return undo.SetTime(tr.Time()), true
}

// Redo replays the last undone group.
type Redo struct{}

func (Redo) Update(st *doc.State, tr *doc.Transaction) (*doc.Transaction, bool) {
	redo, ok := doc.Redo(st)
	if !ok {
		return nil, false
	}
	return redo.SetTime(tr.Time()), true
}

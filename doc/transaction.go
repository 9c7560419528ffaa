package doc

import (
	"fmt"
	"time"

	"github.com/cozy/prosemirror-go/model"
	"github.com/cozy/prosemirror-go/transform"
)

// MetaAddToHistory is the meta key that, set to false, keeps a transaction
// out of the undo history.
const MetaAddToHistory = "addToHistory"

// metaHistory carries the history a history-driven transaction leaves
// behind.
const metaHistory = "history$"

// Transaction accumulates steps, a selection and metadata on top of the
// state it was created from. Every operation is applied immediately to the
// transaction's working document; a failed operation leaves the
// transaction as it was.
type Transaction struct {
	base      *State
	doc       *model.Node
	steps     []transform.Step
	docs      []*model.Node // document before each step
	selection Selection
	meta      map[string]any
	time      time.Time
}

func (tr *Transaction) Before() *model.Node     { return tr.base.doc }
func (tr *Transaction) Doc() *model.Node        { return tr.doc }
func (tr *Transaction) Selection() Selection    { return tr.selection }
func (tr *Transaction) DocChanged() bool        { return len(tr.steps) > 0 }
func (tr *Transaction) Time() time.Time         { return tr.time }
func (tr *Transaction) Steps() []transform.Step { return append([]transform.Step(nil), tr.steps...) }

// Mapping returns the maps of all steps in order.
func (tr *Transaction) Mapping() Mapping {
	m := make(Mapping, len(tr.steps))
	for i, s := range tr.steps {
		m[i] = s.GetMap()
	}
	return m
}

// Step applies s to the working document.
func (tr *Transaction) Step(s transform.Step) error {
	next, err := applyStep(s, tr.doc)
	if err != nil {
		return err
	}
	tr.docs = append(tr.docs, tr.doc)
	tr.steps = append(tr.steps, s)
	tr.doc = next
	tr.selection = tr.selection.mapThrough(s.GetMap(), next)
	return nil
}

// Replace replaces [from, to) with content. content is inserted flat, so
// both ends must be positions where it fits.
func (tr *Transaction) Replace(from, to int, content ...*model.Node) error {
	if from > to || from < 0 || to > tr.doc.Content.Size {
		return fmt.Errorf("replace %d-%d: %w", from, to, ErrInvalidPosition)
	}
	return tr.Step(replaceStep(from, to, content))
}

// ReplaceWith replaces [from, to) with a single node.
func (tr *Transaction) ReplaceWith(from, to int, n *model.Node) error {
	return tr.Replace(from, to, n)
}

func (tr *Transaction) Insert(pos int, content ...*model.Node) error {
	return tr.Replace(pos, pos, content...)
}

func (tr *Transaction) Delete(from, to int) error {
	return tr.Replace(from, to)
}

// InsertText replaces the selection with text and places the cursor after
// it. An empty text only deletes the selection.
func (tr *Transaction) InsertText(text string) error {
	from, to := tr.selection.From(), tr.selection.To()
	var content []*model.Node
	if text != "" {
		content = append(content, tr.base.schema.Text(text))
	}
	if err := tr.Replace(from, to, content...); err != nil {
		return err
	}
	tr.selection = Cursor(from + model.FragmentFromArray(content).Size)
	return nil
}

// ReplaceSelectionWith replaces the selection with n. A node selection
// moves to the replacement.
func (tr *Transaction) ReplaceSelectionWith(n *model.Node) error {
	sel := tr.selection
	if err := tr.ReplaceWith(sel.From(), sel.To(), n); err != nil {
		return err
	}
	if sel.IsNode() {
		if next, err := NodeSelection(tr.doc, sel.From()); err == nil {
			tr.selection = next
		}
	}
	return nil
}

// SetSelection validates sel against the working document and makes it the
// transaction's selection.
func (tr *Transaction) SetSelection(sel Selection) error {
	if err := sel.validate(tr.doc); err != nil {
		return err
	}
	tr.selection = sel
	return nil
}

// SetMeta stores a metadata value. It returns tr for chaining.
func (tr *Transaction) SetMeta(key string, value any) *Transaction {
	if tr.meta == nil {
		tr.meta = make(map[string]any)
	}
	tr.meta[key] = value
	return tr
}

func (tr *Transaction) Meta(key string) (any, bool) {
	v, ok := tr.meta[key]
	return v, ok
}

// AddToHistory reports whether the transaction is recorded in undo history.
func (tr *Transaction) AddToHistory() bool {
	v, ok := tr.meta[MetaAddToHistory].(bool)
	return !ok || v
}

// SetTime overrides the transaction timestamp used for history grouping.
func (tr *Transaction) SetTime(t time.Time) *Transaction {
	tr.time = t
	return tr
}

func (tr *Transaction) String() string {
	return fmt.Sprintf("tr{steps: %d, selection: %s}", len(tr.steps), tr.selection)
}

package doc

import (
	"fmt"

	"github.com/cozy/prosemirror-go/model"
	"github.com/cozy/prosemirror-go/transform"
)

// Selection is either a text selection between Anchor and Head or a node
// selection covering the node that starts at Anchor.
type Selection struct {
	Anchor int
	Head   int
	node   bool
}

func TextSelection(anchor, head int) Selection { return Selection{Anchor: anchor, Head: head} }

// Cursor is an empty text selection.
func Cursor(pos int) Selection { return Selection{Anchor: pos, Head: pos} }

// NodeSelection selects the node starting at pos in d.
func NodeSelection(d *model.Node, pos int) (Selection, error) {
	r, err := d.Resolve(pos)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	node, err := r.NodeAfter()
	if err != nil || node == nil || node.IsText() || r.TextOffset() > 0 {
		return Selection{}, fmt.Errorf("no selectable node at %d: %w", pos, ErrInvalidSelection)
	}
	return Selection{Anchor: pos, Head: pos + node.NodeSize(), node: true}, nil
}

func (s Selection) From() int    { return min(s.Anchor, s.Head) }
func (s Selection) To() int      { return max(s.Anchor, s.Head) }
func (s Selection) Empty() bool  { return s.Anchor == s.Head }
func (s Selection) IsNode() bool { return s.node }

func (s Selection) String() string {
	if s.node {
		return fmt.Sprintf("node@%d", s.Anchor)
	}
	return fmt.Sprintf("text %d-%d", s.Anchor, s.Head)
}

func (s Selection) validate(d *model.Node) error {
	if s.node {
		_, err := NodeSelection(d, s.Anchor)
		return err
	}
	size := d.Content.Size
	if s.Anchor < 0 || s.Anchor > size || s.Head < 0 || s.Head > size {
		return fmt.Errorf("%s outside [0, %d]: %w", s, size, ErrInvalidSelection)
	}
	return nil
}

// mapThrough maps the selection through m onto the changed document d. A
// node selection whose node was replaced collapses to a cursor.
func (s Selection) mapThrough(m transform.Mappable, d *model.Node) Selection {
	size := d.Content.Size
	if s.node {
		r := m.MapResult(s.Anchor, 1)
		if !r.Deleted {
			if sel, err := NodeSelection(d, r.Pos); err == nil {
				return sel
			}
		}
		return Cursor(clamp(r.Pos, size))
	}
	return TextSelection(clamp(m.Map(s.Anchor, 1), size), clamp(m.Map(s.Head, 1), size))
}

func clamp(pos, size int) int {
	return max(0, min(pos, size))
}

// atStart returns a cursor at the first position inside a textblock, or 0.
func atStart(d *model.Node) Selection {
	pos, found := 0, false
	d.NodesBetween(0, d.Content.Size, func(n *model.Node, p int, _ *model.Node, _ int) bool {
		if found {
			return false
		}
		if n.IsBlock() && n.Type.InlineContent {
			pos, found = p+1, true
			return false
		}
		return true
	})
	return Cursor(pos)
}

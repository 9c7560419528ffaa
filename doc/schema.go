// Package doc is the notebook's editor layer on top of the ProseMirror
// document model: the notebook schema, selections, and the
// State/Transaction pair that edits are expressed through, with undo
// history.
package doc

import (
	"errors"
	"fmt"

	"github.com/cozy/prosemirror-go/model"
)

var (
	ErrInvalidContent   = errors.New("invalid content")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrStepFailed       = errors.New("step failed")
	ErrMismatchedState  = errors.New("transaction was not created from this state")
	ErrInvalidSelection = errors.New("invalid selection")
)

// Attrs are node or mark attributes.
type Attrs = map[string]interface{}

// Schema is a ProseMirror schema with the constructors the notebook uses.
type Schema struct {
	*model.Schema
	top *model.NodeType
}

// NewSchema compiles spec.
func NewSchema(spec *model.SchemaSpec) (*Schema, error) {
	s, err := model.NewSchema(spec)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	top, err := s.NodeType(s.Spec.TopNode)
	if err != nil {
		return nil, err
	}
	return &Schema{Schema: s, top: top}, nil
}

func attrs(names ...string) map[string]*model.AttributeSpec {
	specs := make(map[string]*model.AttributeSpec, len(names))
	for _, name := range names {
		specs[name] = &model.AttributeSpec{Default: ""}
	}
	return specs
}

var (
	noMarks   = ""
	exclusive = false
)

// notebookSpec follows the Tiptap node names the editor emits.
// placeholder and output are block atoms standing in for cells whose
// content is computed asynchronously.
func notebookSpec() *model.SchemaSpec {
	return &model.SchemaSpec{
		TopNode: "doc",
		Nodes: []*model.NodeSpec{
			{Key: "doc", Content: "block+"},
			{Key: "paragraph", Content: "inline*", Group: "block"},
			{Key: "heading", Content: "inline*", Group: "block",
				Attrs: map[string]*model.AttributeSpec{"level": {Default: 1.0}}},
			{Key: "codeBlock", Content: "text*", Marks: &noMarks, Group: "block", Attrs: attrs("language")},
			{Key: "blockquote", Content: "block+", Group: "block"},
			{Key: "bulletList", Content: "listItem+", Group: "block"},
			{Key: "orderedList", Content: "listItem+", Group: "block",
				Attrs: map[string]*model.AttributeSpec{"start": {Default: 1.0}}},
			{Key: "listItem", Content: "paragraph block*"},
			{Key: "horizontalRule", Group: "block"},
			{Key: "placeholder", Group: "block", Atom: true, Attrs: attrs("id")},
			{Key: "output", Group: "block", Atom: true, Attrs: attrs("id", "value")},
			{Key: "text", Group: "inline"},
			{Key: "hardBreak", Group: "inline", Inline: true},
			{Key: "image", Group: "inline", Inline: true, Attrs: attrs("src", "alt", "title")},
		},
		Marks: []*model.MarkSpec{
			{Key: "bold"},
			{Key: "italic"},
			{Key: "code"},
			{Key: "link", Attrs: attrs("href", "title"), Inclusive: &exclusive},
		},
	}
}

var defaultSchema = mustSchema(NewSchema(notebookSpec()))

func mustSchema(s *Schema, err error) *Schema {
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultSchema returns the notebook schema.
func DefaultSchema() *Schema { return defaultSchema }

// Top returns the root node type.
func (s *Schema) Top() *model.NodeType { return s.top }

// MustNode creates a node checked against the schema's content rules and
// panics on error. Intended for fixed documents and tests.
func (s *Schema) MustNode(name string, attrs Attrs, content ...*model.Node) *model.Node {
	n, err := s.Node(name, attrs, append([]*model.Node(nil), content...))
	if err != nil {
		panic(fmt.Sprintf("doc: %s: %v", name, err))
	}
	return n
}

// EmptyDoc returns a top node holding one empty paragraph.
func (s *Schema) EmptyDoc() *model.Node {
	return s.MustNode(s.top.Name, nil, s.MustNode("paragraph", nil))
}

// NodeAt returns the node starting at pos in d, or the text node that
// contains pos. Unlike model.Node.NodeAt it returns nil for positions
// outside d instead of panicking.
func NodeAt(d *model.Node, pos int) *model.Node {
	if pos < 0 || pos >= d.Content.Size {
		return nil
	}
	return d.NodeAt(pos)
}

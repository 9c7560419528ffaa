package doc

import (
	"encoding/json"
	"fmt"

	"github.com/cozy/prosemirror-go/model"
)

// NodeFromJSON decodes a node tree and checks it against the schema.
// model.NodeFromJSON builds nodes without validating their content, so
// the decoded tree is walked once more.
func (s *Schema) NodeFromJSON(data []byte) (*model.Node, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return s.nodeFromObject(obj)
}

// NodesFromJSON decodes a JSON array of nodes.
func (s *Schema) NodesFromJSON(data []byte) ([]*model.Node, error) {
	var objs []map[string]interface{}
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}
	nodes := make([]*model.Node, 0, len(objs))
	for _, obj := range objs {
		n, err := s.nodeFromObject(obj)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (s *Schema) nodeFromObject(obj map[string]interface{}) (*model.Node, error) {
	if obj == nil {
		return nil, fmt.Errorf("null node: %w", ErrInvalidContent)
	}
	n, err := model.NodeFromJSON(s.Schema, obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	if err := check(n); err != nil {
		return nil, err
	}
	return n, nil
}

func check(n *model.Node) error {
	if n.IsText() {
		if n.Text == nil || *n.Text == "" {
			return fmt.Errorf("empty text node: %w", ErrInvalidContent)
		}
		return nil
	}
	if !n.Type.ValidContent(n.Content) {
		return fmt.Errorf("content of %s: %w", n.Type.Name, ErrInvalidContent)
	}
	for _, c := range n.Content.Content {
		if err := check(c); err != nil {
			return err
		}
	}
	return nil
}

// MarshalNode encodes n in the ProseMirror JSON shape.
func MarshalNode(n *model.Node) ([]byte, error) {
	return json.Marshal(n.ToJSON())
}

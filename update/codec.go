package update

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cozy/prosemirror-go/model"
	"github.com/tidwall/gjson"

	"github.com/alimasry/go-notebook/doc"
)

// Wire type discriminators.
const (
	KindReplaceNode  = "replaceNode"
	KindInsertText   = "insertText"
	KindReplace      = "replace"
	KindSetSelection = "setSelection"
	KindUndo         = "undo"
	KindRedo         = "redo"
)

var ErrUnknownKind = errors.New("unknown update type")

type replaceNodeJSON struct {
	Type   string          `json:"type"`
	Pos    int             `json:"pos"`
	Target json.RawMessage `json:"target"`
	Node   json.RawMessage `json:"node"`
}

type insertTextJSON struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replaceJSON struct {
	Type    string          `json:"type"`
	From    int             `json:"from"`
	To      int             `json:"to"`
	Content json.RawMessage `json:"content,omitempty"`
}

type setSelectionJSON struct {
	Type   string `json:"type"`
	Anchor int    `json:"anchor"`
	Head   int    `json:"head"`
	Node   bool   `json:"node,omitempty"`
}

type kindJSON struct {
	Type string `json:"type"`
}

// Kind returns the wire type of u, or "func" for ad-hoc updates.
func Kind(u Update) string {
	switch u.(type) {
	case ReplaceNode, *ReplaceNode:
		return KindReplaceNode
	case InsertText, *InsertText:
		return KindInsertText
	case Replace, *Replace:
		return KindReplace
	case SetSelection, *SetSelection:
		return KindSetSelection
	case Undo, *Undo:
		return KindUndo
	case Redo, *Redo:
		return KindRedo
	}
	return "func"
}

// Decode parses one wire update. Node content is decoded against schema.
func Decode(schema *doc.Schema, raw []byte) (Update, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode update: invalid json")
	}
	kind := gjson.GetBytes(raw, "type")
	if !kind.Exists() {
		return nil, fmt.Errorf("decode update: missing type")
	}

	switch kind.String() {
	case KindReplaceNode:
		var w replaceNodeJSON
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", KindReplaceNode, err)
		}
		target, err := schema.NodeFromJSON(w.Target)
		if err != nil {
			return nil, fmt.Errorf("decode %s target: %w", KindReplaceNode, err)
		}
		node, err := schema.NodeFromJSON(w.Node)
		if err != nil {
			return nil, fmt.Errorf("decode %s node: %w", KindReplaceNode, err)
		}
		return ReplaceNode{Pos: w.Pos, Target: target, Replacement: node}, nil

	case KindInsertText:
		var w insertTextJSON
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", KindInsertText, err)
		}
		return InsertText{Text: w.Text}, nil

	case KindReplace:
		var w replaceJSON
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", KindReplace, err)
		}
		var content []*model.Node
		if len(w.Content) > 0 {
			var err error
			if content, err = schema.NodesFromJSON(w.Content); err != nil {
				return nil, fmt.Errorf("decode %s content: %w", KindReplace, err)
			}
		}
		return Replace{From: w.From, To: w.To, Content: content}, nil

	case KindSetSelection:
		var w setSelectionJSON
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", KindSetSelection, err)
		}
		return SetSelection{Anchor: w.Anchor, Head: w.Head, Node: w.Node}, nil

	case KindUndo:
		return Undo{}, nil
	case KindRedo:
		return Redo{}, nil
	}
	return nil, fmt.Errorf("%q: %w", kind.String(), ErrUnknownKind)
}

// DecodeAll decodes a batch, failing on the first bad entry.
func DecodeAll(schema *doc.Schema, raws []json.RawMessage) ([]Update, error) {
	updates := make([]Update, 0, len(raws))
	for i, raw := range raws {
		u, err := Decode(schema, raw)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// Encode produces the wire form of u.
func Encode(u Update) ([]byte, error) {
	switch v := u.(type) {
	case *ReplaceNode:
		return Encode(*v)
	case *InsertText:
		return Encode(*v)
	case *Replace:
		return Encode(*v)
	case *SetSelection:
		return Encode(*v)
	case ReplaceNode:
		if v.Target == nil || v.Replacement == nil {
			return nil, fmt.Errorf("encode %s: missing node", KindReplaceNode)
		}
		target, err := doc.MarshalNode(v.Target)
		if err != nil {
			return nil, err
		}
		node, err := doc.MarshalNode(v.Replacement)
		if err != nil {
			return nil, err
		}
		return json.Marshal(replaceNodeJSON{Type: KindReplaceNode, Pos: v.Pos, Target: target, Node: node})
	case InsertText:
		return json.Marshal(insertTextJSON{Type: KindInsertText, Text: v.Text})
	case Replace:
		w := replaceJSON{Type: KindReplace, From: v.From, To: v.To}
		if len(v.Content) > 0 {
			nodes := make([]interface{}, len(v.Content))
			for i, n := range v.Content {
				nodes[i] = n.ToJSON()
			}
			content, err := json.Marshal(nodes)
			if err != nil {
				return nil, err
			}
			w.Content = content
		}
		return json.Marshal(w)
	case SetSelection:
		return json.Marshal(setSelectionJSON{Type: KindSetSelection, Anchor: v.Anchor, Head: v.Head, Node: v.Node})
	case Undo, *Undo:
		return json.Marshal(kindJSON{Type: KindUndo})
	case Redo, *Redo:
		return json.Marshal(kindJSON{Type: KindRedo})
	}
	return nil, fmt.Errorf("encode %T: %w", u, ErrUnknownKind)
}

package doc

import (
	"fmt"

	"github.com/cozy/prosemirror-go/model"
	"github.com/cozy/prosemirror-go/transform"
)

// Mapping is a sequence of step maps applied in order.
type Mapping []*transform.StepMap

var _ transform.Mappable = Mapping(nil)

// MapResult maps pos through every map. The result is deleted when any
// of the maps deleted it.
func (mp Mapping) MapResult(pos int, assoc ...int) *transform.MapResult {
	deleted := false
	for _, m := range mp {
		r := m.MapResult(pos, assoc...)
		pos = r.Pos
		deleted = deleted || r.Deleted
	}
	return transform.NewMapResult(pos, deleted)
}

func (mp Mapping) Map(pos int, assoc ...int) int {
	return mp.MapResult(pos, assoc...).Pos
}

// replaceStep builds a flat replace of [from, to) with content.
func replaceStep(from, to int, content []*model.Node) transform.Step {
	if len(content) == 0 {
		return transform.NewReplaceStep(from, to, model.EmptySlice)
	}
	// FragmentFromArray joins text nodes in place.
	nodes := append([]*model.Node(nil), content...)
	return transform.NewReplaceStep(from, to, model.NewSlice(model.FragmentFromArray(nodes), 0, 0))
}

func applyStep(s transform.Step, d *model.Node) (*model.Node, error) {
	res := s.Apply(d)
	if res.Failed != "" {
		return nil, fmt.Errorf("%w: %s", ErrStepFailed, res.Failed)
	}
	return res.Doc, nil
}

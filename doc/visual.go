package doc

import (
	"strconv"

	"github.com/cozy/prosemirror-go/model"
)

// VisualIDs numbers the nodes whose type is in types, in depth-first
// document order, and returns the labels keyed by node position. Numbered
// nodes nested inside another numbered node get a dotted label ("2.1").
func VisualIDs(d *model.Node, types ...string) map[int]string {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	ids := make(map[int]string)
	counters := make(map[string]int)

	var walk func(n *model.Node, start int, prefix string)
	walk = func(n *model.Node, start int, prefix string) {
		n.ForEach(func(c *model.Node, offset, _ int) {
			pos := start + offset
			childPrefix := prefix
			if want[c.Type.Name] {
				counters[prefix]++
				id := strconv.Itoa(counters[prefix])
				if prefix != "" {
					id = prefix + "." + id
				}
				ids[pos] = id
				childPrefix = id
			}
			if c.ChildCount() > 0 {
				walk(c, pos+1, childPrefix)
			}
		})
	}
	walk(d, 0, "")
	return ids
}

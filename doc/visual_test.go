package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisualIDs(t *testing.T) {
	// output@0, paragraph@1-3, output@3, blockquote@4 holding output@5.
	d := root(
		output("a"),
		p(""),
		output("b"),
		schema.MustNode("blockquote", nil, output("c")),
	)

	assert.Equal(t, map[int]string{0: "1", 3: "2", 5: "3"}, VisualIDs(d, "output"))
	assert.Equal(t,
		map[int]string{0: "1", 3: "2", 4: "3", 5: "3.1"},
		VisualIDs(d, "output", "blockquote"),
	)
	assert.Empty(t, VisualIDs(d, "heading"))
}

package doc

import (
	"testing"

	"github.com/cozy/prosemirror-go/model"
	"github.com/cozy/prosemirror-go/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceStep_Apply(t *testing.T) {
	tests := []struct {
		name    string
		from    int
		to      int
		content []*model.Node
		want    *model.Node
	}{
		{"replace placeholder", 5, 6, []*model.Node{output("p1")}, root(p("abc"), output("p1"), p("de"))},
		{"insert text mid word", 2, 2, []*model.Node{schema.Text("X")}, root(p("aXbc"), placeholder("p1"), p("de"))},
		{"delete text", 1, 3, nil, root(p("c"), placeholder("p1"), p("de"))},
		{"insert block", 0, 0, []*model.Node{p("new")}, root(p("new"), p("abc"), placeholder("p1"), p("de"))},
		{"delete block", 5, 6, nil, root(p("abc"), p("de"))},
		{"delete across blocks joins them", 2, 7, nil, root(p("ade"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := sample()
			got, err := applyStep(replaceStep(tt.from, tt.to, tt.content), before)
			require.NoError(t, err)
			assert.True(t, got.Eq(tt.want), "got %s, want %s", got, tt.want)
			assert.True(t, before.Eq(sample()), "input must not change")
		})
	}
}

func TestReplaceStep_JoinsText(t *testing.T) {
	got, err := applyStep(replaceStep(4, 4, []*model.Node{schema.Text("X")}), sample())
	require.NoError(t, err)
	assert.Equal(t, 1, got.MaybeChild(0).ChildCount())
	assert.Equal(t, "abcX", got.MaybeChild(0).TextContent())

	bold := schema.Text("Y", []*model.Mark{schema.Mark("bold")})
	got, err = applyStep(replaceStep(4, 4, []*model.Node{bold}), sample())
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaybeChild(0).ChildCount(), "different marks stay separate")
}

func TestReplaceStep_KeepsCallerSlice(t *testing.T) {
	content := []*model.Node{schema.Text("a"), schema.Text("b")}
	_, err := applyStep(replaceStep(1, 1, content), sample())
	require.NoError(t, err)
	assert.Equal(t, "a", *content[0].Text)
}

func TestReplaceStep_Errors(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		content  []*model.Node
	}{
		{"out of range", 9, 11, nil},
		{"text at block level", 5, 5, []*model.Node{schema.Text("x")}},
		{"block in textblock", 2, 2, []*model.Node{p("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyStep(replaceStep(tt.from, tt.to, tt.content), sample())
			assert.ErrorIs(t, err, ErrStepFailed)
		})
	}
}

func TestReplaceStep_Invert(t *testing.T) {
	before := sample()
	step := replaceStep(2, 3, []*model.Node{schema.Text("XY")})
	after, err := applyStep(step, before)
	require.NoError(t, err)
	assert.Equal(t, "aXYc", after.MaybeChild(0).TextContent())

	inv := step.Invert(before).(*transform.ReplaceStep)
	assert.Equal(t, 2, inv.From)
	assert.Equal(t, 4, inv.To)

	restored, err := applyStep(inv, after)
	require.NoError(t, err)
	assert.True(t, restored.Eq(before), "got %s", restored)
}

func TestMapping(t *testing.T) {
	m := Mapping{
		transform.NewStepMap([]int{5, 1, 3}),
		transform.NewStepMap([]int{0, 0, 2}),
	}
	assert.Equal(t, 4, m.Map(2))
	assert.Equal(t, 13, m.Map(9))

	r := m.MapResult(7)
	assert.Equal(t, 11, r.Pos)
	assert.False(t, r.Deleted)

	del := Mapping{transform.NewStepMap([]int{2, 4, 0})}
	r = del.MapResult(4)
	assert.Equal(t, 2, r.Pos)
	assert.True(t, r.Deleted)
}

package doc

import (
	"time"

	"github.com/cozy/prosemirror-go/transform"
)

const (
	// NewGroupDelay is the window in which consecutive transactions are
	// merged into one undo step.
	NewGroupDelay = 500 * time.Millisecond
	// MaxHistoryDepth bounds the number of undo steps kept.
	MaxHistoryDepth = 100
)

// historyItem holds the inverted steps of one undo group in the order they
// must be applied.
type historyItem struct {
	steps []transform.Step
}

// History is the undo/redo state carried by State. It is immutable.
type History struct {
	done     []historyItem
	undone   []historyItem
	prevTime time.Time
}

func (h *History) UndoDepth() int { return len(h.done) }
func (h *History) RedoDepth() int { return len(h.undone) }

func (h *History) apply(tr *Transaction) *History {
	if next, ok := tr.meta[metaHistory].(*History); ok {
		return next
	}
	if !tr.DocChanged() {
		return h
	}
	if !tr.AddToHistory() {
		m := tr.Mapping()
		return &History{done: rebaseItems(h.done, m), undone: rebaseItems(h.undone, m), prevTime: h.prevTime}
	}

	inverted := make([]transform.Step, 0, len(tr.steps))
	for i := len(tr.steps) - 1; i >= 0; i-- {
		inverted = append(inverted, tr.steps[i].Invert(tr.docs[i]))
	}

	done := append([]historyItem(nil), h.done...)
	if n := len(done); n > 0 && !h.prevTime.IsZero() && tr.time.Sub(h.prevTime) < NewGroupDelay {
		merged := append(inverted, done[n-1].steps...)
		done[n-1] = historyItem{steps: merged}
	} else {
		done = append(done, historyItem{steps: inverted})
	}
	if len(done) > MaxHistoryDepth {
		done = done[len(done)-MaxHistoryDepth:]
	}
	return &History{done: done, prevTime: tr.time}
}

// rebaseItems maps a stack of history items, newest last, onto a document
// changed by m. Each item's steps are relative to the document left by the
// steps applied before them, so positions are carried back through those
// steps, across m, and forward through their rebased versions.
func rebaseItems(items []historyItem, m Mapping) []historyItem {
	var back, fwd Mapping
	out := make([]historyItem, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var steps []transform.Step
		for _, s := range items[i].steps {
			chain := make(Mapping, 0, len(back)+len(m)+len(fwd))
			chain = append(chain, back...)
			chain = append(chain, m...)
			chain = append(chain, fwd...)
			if mapped := s.Map(chain); mapped != nil {
				steps = append(steps, mapped)
				fwd = append(fwd, mapped.GetMap())
			}
			back = append(Mapping{s.GetMap().Invert()}, back...)
		}
		if len(steps) > 0 {
			out = append(out, historyItem{steps: steps})
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// Undo returns a transaction reverting the most recent undo group. It
// reports false when there is nothing to undo.
func Undo(s *State) (*Transaction, bool) { return histTransaction(s, false) }

// Redo returns a transaction replaying the most recently undone group.
func Redo(s *State) (*Transaction, bool) { return histTransaction(s, true) }

func histTransaction(s *State, redo bool) (*Transaction, bool) {
	from, to := s.history.done, s.history.undone
	if redo {
		from, to = to, from
	}
	if len(from) == 0 {
		return nil, false
	}
	item := from[len(from)-1]
	tr := s.Tr()
	var inverse []transform.Step
	for _, step := range item.steps {
		before := tr.doc
		if err := tr.Step(step); err != nil {
			continue
		}
		inverse = append([]transform.Step{step.Invert(before)}, inverse...)
	}
	if !tr.DocChanged() {
		return nil, false
	}

	remaining := append([]historyItem(nil), from[:len(from)-1]...)
	pushed := append(append([]historyItem(nil), to...), historyItem{steps: inverse})
	next := &History{done: remaining, undone: pushed}
	if redo {
		next = &History{done: pushed, undone: remaining}
	}
	tr.SetMeta(metaHistory, next)
	return tr, true
}

// Package update applies batches of document updates to an editor state
// as one all-or-nothing operation.
package update

import (
	"time"

	"github.com/alimasry/go-notebook/doc"
)

// Update is one edit intent. Given a state and a transaction freshly
// created from it, Update adds its operations to tr and returns it, or
// returns false when the intent no longer applies. A rejection carries no
// reason and fails the whole batch.
type Update interface {
	Update(st *doc.State, tr *doc.Transaction) (*doc.Transaction, bool)
}

// Func adapts a function to the Update interface.
type Func func(st *doc.State, tr *doc.Transaction) (*doc.Transaction, bool)

func (f Func) Update(st *doc.State, tr *doc.Transaction) (*doc.Transaction, bool) {
	return f(st, tr)
}

// View is the live projection of a state.
type View interface {
	UpdateState(st *doc.State)
	Focus()
}

// Fold threads start through updates in order. Each update gets a fresh
// transaction from the state left by the previous one. It returns false as
// soon as one update rejects or produces a transaction that cannot be
// applied; start itself is never modified.
func Fold(start *doc.State, updates []Update) (*doc.State, bool) {
	return FoldAt(start, updates, time.Now())
}

// FoldAt is Fold with every transaction stamped at. Undo grouping depends
// on transaction times only, so folding a stored batch at its recorded
// time reproduces the history it built.
func FoldAt(start *doc.State, updates []Update, at time.Time) (*doc.State, bool) {
	current := start
	for _, u := range updates {
		tr, ok := u.Update(current, current.Tr().SetTime(at))
		if !ok || tr == nil {
			return nil, false
		}
		next, err := current.Apply(tr)
		if err != nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Apply folds updates over start and, if all of them succeed, focuses v
// and hands it the final state exactly once. On failure v is not touched.
func Apply(start *doc.State, updates []Update, v View) bool {
	return ApplyAt(start, updates, v, time.Now())
}

// ApplyAt is Apply with the transactions stamped at.
func ApplyAt(start *doc.State, updates []Update, v View, at time.Time) bool {
	final, ok := FoldAt(start, updates, at)
	if !ok {
		return false
	}
	v.Focus()
	v.UpdateState(final)
	return true
}

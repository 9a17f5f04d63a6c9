// Package editor tracks the per-page editing session: the view/edit state of
// each editable field, the currently open comment target, and the dispatch
// of user actions read from element data.
package editor

import "fmt"

// Field is one of the editable text surfaces of an episode page.
type Field string

const (
	FieldPlan     Field = "plan"
	FieldScenario Field = "scenario"
	FieldTitle    Field = "title"
)

// State is the two-state view/edit flag of a field.
type State int

const (
	Viewing State = iota
	Editing
)

func (s State) String() string {
	if s == Editing {
		return "editing"
	}
	return "viewing"
}

// NoTarget marks that no comment form is open.
const NoTarget = -1

// Page is the per-page session object, constructed once at initialization
// and passed explicitly to handlers. It owns the field edit states and the
// open comment target; the comment store is reachable through it so handlers
// need no module-level state.
type Page struct {
	fields        map[Field]State
	commentTarget int
}

func NewPage() *Page {
	return &Page{
		fields: map[Field]State{
			FieldPlan:     Viewing,
			FieldScenario: Viewing,
			FieldTitle:    Viewing,
		},
		commentTarget: NoTarget,
	}
}

// State returns the current state of a field. Unknown fields view.
func (p *Page) State(f Field) State {
	return p.fields[f]
}

// BeginEdit reveals the raw editor for a field. Editing the scenario
// suppresses commenting, so any open comment form is closed.
func (p *Page) BeginEdit(f Field) {
	p.fields[f] = Editing
	if f == FieldScenario {
		p.CloseCommentForm()
	}
}

// EndEdit returns a field to its rendered view, either by explicit user
// action or after a successful save.
func (p *Page) EndEdit(f Field) {
	p.fields[f] = Viewing
}

// CanComment reports whether click-to-comment is available: only while the
// scenario is in its rendered form, since block indices are render-derived.
func (p *Page) CanComment() bool {
	return p.fields[FieldScenario] == Viewing
}

// OpenCommentForm binds the comment input to a block index.
func (p *Page) OpenCommentForm(blockIndex int) error {
	if !p.CanComment() {
		return fmt.Errorf("cannot comment while the scenario is being edited")
	}
	if blockIndex < 0 {
		return fmt.Errorf("invalid block index %d", blockIndex)
	}
	p.commentTarget = blockIndex
	return nil
}

// CloseCommentForm clears the open comment target.
func (p *Page) CloseCommentForm() {
	p.commentTarget = NoTarget
}

// CommentTarget returns the open comment target, if any.
func (p *Page) CommentTarget() (int, bool) {
	if p.commentTarget == NoTarget {
		return 0, false
	}
	return p.commentTarget, true
}

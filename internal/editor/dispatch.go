package editor

import "fmt"

// Action is the discriminated action type read from a clicked element's
// data. Dynamic content carries data-action attributes instead of direct
// handler bindings, so handlers survive re-renders.
type Action string

const (
	ActionEditPlan      Action = "edit-plan"
	ActionViewPlan      Action = "view-plan"
	ActionEditScenario  Action = "edit-scenario"
	ActionViewScenario  Action = "view-scenario"
	ActionEditTitle     Action = "edit-title"
	ActionOpenComment   Action = "open-comment"
	ActionCancelComment Action = "cancel-comment"
	ActionDeleteComment Action = "delete-comment"
)

// Handler handles one action. The element's data attributes arrive as a map.
type Handler func(page *Page, data map[string]string) error

// Dispatcher resolves actions to handlers once at the container level.
type Dispatcher struct {
	page     *Page
	handlers map[Action]Handler
}

func NewDispatcher(page *Page) *Dispatcher {
	return &Dispatcher{page: page, handlers: make(map[Action]Handler)}
}

func (d *Dispatcher) Register(a Action, h Handler) {
	d.handlers[a] = h
}

// Dispatch routes an action to its handler. Unknown actions are not errors;
// clicks outside any actionable element simply do nothing.
func (d *Dispatcher) Dispatch(a Action, data map[string]string) error {
	h, ok := d.handlers[a]
	if !ok {
		return nil
	}
	if err := h(d.page, data); err != nil {
		return fmt.Errorf("action %s: %w", a, err)
	}
	return nil
}

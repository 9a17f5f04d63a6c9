package page

import (
	"context"
	"errors"
	"log"
	"strconv"

	"redbook/api/internal/blocks"
	"redbook/api/internal/comments"
	"redbook/api/internal/editor"
	"redbook/api/internal/panel"
	"redbook/api/internal/syncclient"
)

// API is the sync surface the controller drives, one method per user
// intent. *syncclient.Client satisfies it.
type API interface {
	SaveField(ctx context.Context, field editor.Field, content string) error
	SubmitComment(ctx context.Context, blockIndex int, text string) (comments.Comment, error)
	DeleteComment(ctx context.Context, commentID int64) error
	SaveTitle(ctx context.Context, current, newTitle string) (string, error)
	SaveOrder(ctx context.Context, orderedIDs []int64) error
}

// Controller is the per-page session object. It owns the edit states, the
// open comment target, the comment store, and the rendered views, and it is
// handed to every action handler explicitly.
type Controller struct {
	Page  *editor.Page
	Store *comments.Store

	api      API
	scenario *ScenarioView
	planHTML string

	title     string
	pageTitle string

	// Confirm gates comment deletion; Alert surfaces blocking errors; Fade
	// runs the short removal transition before a deleted comment leaves the
	// store. All three are UI hooks.
	Confirm func() bool
	Alert   func(message string)
	Fade    func()

	// Status messages surfaced inline, keyed per concern.
	FieldStatus   map[editor.Field]string
	CommentStatus string

	submitInFlight bool
	deleteInFlight map[int64]bool
}

func NewController(api API) *Controller {
	c := &Controller{
		Page:           editor.NewPage(),
		api:            api,
		scenario:       &ScenarioView{},
		Confirm:        func() bool { return true },
		Alert:          func(string) {},
		Fade:           func() {},
		FieldStatus:    make(map[editor.Field]string),
		deleteInFlight: make(map[int64]bool),
	}
	c.Store = comments.NewStore(c.scenario)
	return c
}

// Init renders the initial page state from the server-provided snapshot.
// The snapshot feeds the store exactly once; the store is authoritative for
// "has comments" from here on.
func (c *Controller) Init(title, rawPlan, rawScenario string, initial map[int][]comments.Comment) error {
	c.title = title
	c.pageTitle = title

	planHTML, err := blocks.Render(rawPlan)
	if err != nil {
		return err
	}
	c.planHTML = planHTML

	// Load before the first render so indexing sees the loaded groups.
	c.Store.LoadAll(initial)
	return c.scenario.Rerender(rawScenario, c.Store.HasComments)
}

// Dispatcher builds the action table for the page container.
func (c *Controller) Dispatcher() *editor.Dispatcher {
	d := editor.NewDispatcher(c.Page)
	d.Register(editor.ActionEditPlan, func(p *editor.Page, _ map[string]string) error {
		p.BeginEdit(editor.FieldPlan)
		return nil
	})
	d.Register(editor.ActionViewPlan, func(p *editor.Page, _ map[string]string) error {
		p.EndEdit(editor.FieldPlan)
		return nil
	})
	d.Register(editor.ActionEditScenario, func(p *editor.Page, _ map[string]string) error {
		p.BeginEdit(editor.FieldScenario)
		return nil
	})
	d.Register(editor.ActionViewScenario, func(p *editor.Page, _ map[string]string) error {
		p.EndEdit(editor.FieldScenario)
		return c.scenario.Rerender(c.scenario.Raw(), c.Store.HasComments)
	})
	d.Register(editor.ActionOpenComment, func(p *editor.Page, data map[string]string) error {
		index, err := strconv.Atoi(data["block-index"])
		if err != nil {
			return nil
		}
		return p.OpenCommentForm(index)
	})
	d.Register(editor.ActionCancelComment, func(p *editor.Page, _ map[string]string) error {
		p.CloseCommentForm()
		c.CommentStatus = ""
		return nil
	})
	d.Register(editor.ActionEditTitle, func(p *editor.Page, _ map[string]string) error {
		p.BeginEdit(editor.FieldTitle)
		return nil
	})
	d.Register(editor.ActionDeleteComment, func(_ *editor.Page, data map[string]string) error {
		id, err := strconv.ParseInt(data["comment-id"], 10, 64)
		if err != nil {
			return nil
		}
		return c.DeleteComment(context.Background(), id)
	})
	return d
}

// SaveField persists a field's raw text. Success re-renders the field and
// returns it to Viewing; for the scenario this re-indexes every block.
// Failure surfaces the message inline and leaves the user editing.
func (c *Controller) SaveField(ctx context.Context, field editor.Field, content string) error {
	if err := c.api.SaveField(ctx, field, content); err != nil {
		c.FieldStatus[field] = err.Error()
		return err
	}
	c.FieldStatus[field] = "Saved."
	c.Page.EndEdit(field)
	switch field {
	case editor.FieldPlan:
		rendered, err := blocks.Render(content)
		if err != nil {
			return err
		}
		c.planHTML = rendered
	case editor.FieldScenario:
		if err := c.scenario.Rerender(content, c.Store.HasComments); err != nil {
			return err
		}
	}
	return nil
}

// SubmitComment sends the open comment form. While the request is in
// flight the submit control is disabled; nothing else is blocked. On
// success the comment enters the store and the form closes; on failure the
// form stays open and populated.
func (c *Controller) SubmitComment(ctx context.Context, text string) error {
	if c.submitInFlight {
		return nil
	}
	target, open := c.Page.CommentTarget()
	if !open {
		c.CommentStatus = "No paragraph selected."
		return errors.New(c.CommentStatus)
	}

	c.submitInFlight = true
	defer func() { c.submitInFlight = false }()

	comment, err := c.api.SubmitComment(ctx, target, text)
	if err != nil {
		c.CommentStatus = err.Error()
		return err
	}
	comment.CanDelete = true // own comment
	c.Store.Add(comment)
	c.Page.CloseCommentForm()
	c.CommentStatus = ""
	return nil
}

// DeleteComment asks for confirmation, then deletes. Declining makes no
// network call. Success removes the comment after the fade hook; failure
// leaves it in place and alerts.
func (c *Controller) DeleteComment(ctx context.Context, commentID int64) error {
	if c.deleteInFlight[commentID] {
		return nil
	}
	if !c.Confirm() {
		return nil
	}

	c.deleteInFlight[commentID] = true
	defer delete(c.deleteInFlight, commentID)

	if err := c.api.DeleteComment(ctx, commentID); err != nil {
		c.Alert("Could not delete the comment: " + err.Error())
		return err
	}
	c.Fade()
	c.Store.Remove(commentID)
	return nil
}

// SaveTitle updates the episode and page titles. A blank or unchanged
// title cancels silently.
func (c *Controller) SaveTitle(ctx context.Context, newTitle string) error {
	saved, err := c.api.SaveTitle(ctx, c.title, newTitle)
	if errors.Is(err, syncclient.ErrTitleUnchanged) {
		c.Page.EndEdit(editor.FieldTitle)
		return nil
	}
	if err != nil {
		c.FieldStatus[editor.FieldTitle] = err.Error()
		return err
	}
	c.title = saved
	c.pageTitle = saved
	c.Page.EndEdit(editor.FieldTitle)
	c.FieldStatus[editor.FieldTitle] = ""
	return nil
}

// SaveOrder forwards a completed reorder gesture. The gesture is not
// rolled back on failure; the error is alerted.
func (c *Controller) SaveOrder(ctx context.Context, orderedIDs []int64) {
	if err := c.api.SaveOrder(ctx, orderedIDs); err != nil {
		log.Printf("page: save order failed: %v", err)
		c.Alert("Could not save the order: " + err.Error())
	}
}

// Title returns the displayed episode title.
func (c *Controller) Title() string { return c.title }

// PageTitle returns the document title text.
func (c *Controller) PageTitle() string { return c.pageTitle }

// Scenario exposes the rendered scenario view.
func (c *Controller) Scenario() *ScenarioView { return c.scenario }

// PlanHTML returns the rendered plan fragment.
func (c *Controller) PlanHTML() string { return c.planHTML }

// PanelHTML renders the comment panel from the store.
func (c *Controller) PanelHTML() (string, error) {
	return panel.Render(c.Store)
}

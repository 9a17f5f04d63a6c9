package page

import (
	"context"
	"errors"
	"strings"
	"testing"

	"redbook/api/internal/comments"
	"redbook/api/internal/editor"
	"redbook/api/internal/syncclient"
)

// fakeAPI records calls and returns scripted results.
type fakeAPI struct {
	saveFieldErr   error
	submitErr      error
	deleteErr      error
	saveTitleErr   error
	saveOrderErr   error
	submitCalls    int
	deleteCalls    int
	saveFieldCalls int
	nextCommentID  int64
}

func (f *fakeAPI) SaveField(_ context.Context, _ editor.Field, _ string) error {
	f.saveFieldCalls++
	return f.saveFieldErr
}

func (f *fakeAPI) SubmitComment(_ context.Context, blockIndex int, text string) (comments.Comment, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return comments.Comment{}, f.submitErr
	}
	f.nextCommentID++
	return comments.Comment{ID: f.nextCommentID, BlockIndex: blockIndex, Text: text, Author: "me"}, nil
}

func (f *fakeAPI) DeleteComment(_ context.Context, _ int64) error {
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeAPI) SaveTitle(_ context.Context, current, newTitle string) (string, error) {
	if f.saveTitleErr != nil {
		return "", f.saveTitleErr
	}
	if strings.TrimSpace(newTitle) == "" || newTitle == current {
		return "", syncclient.ErrTitleUnchanged
	}
	return newTitle, nil
}

func (f *fakeAPI) SaveOrder(_ context.Context, _ []int64) error {
	return f.saveOrderErr
}

func newTestController(t *testing.T, api *fakeAPI) *Controller {
	t.Helper()
	c := NewController(api)
	if err := c.Init("Episode 1", "plan text", "First.\n\nSecond.\n\nThird.\n", nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

func TestSubmitCommentSuccessUpdatesStoreAndClosesForm(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)

	if err := c.Page.OpenCommentForm(1); err != nil {
		t.Fatalf("open form: %v", err)
	}
	if err := c.SubmitComment(context.Background(), "needs work"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if !c.Store.HasComments(1) {
		t.Error("comment should be in the store")
	}
	if _, open := c.Page.CommentTarget(); open {
		t.Error("form should close on success")
	}
	html, err := c.Scenario().HTML()
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(html, "highlight-color-1") {
		t.Errorf("block 1 should gain its color: %s", html)
	}
}

func TestSubmitCommentFailureKeepsFormOpen(t *testing.T) {
	api := &fakeAPI{submitErr: errors.New("duplicate")}
	c := newTestController(t, api)

	c.Page.OpenCommentForm(2)
	if err := c.SubmitComment(context.Background(), "again"); err == nil {
		t.Fatal("expected failure")
	}

	if target, open := c.Page.CommentTarget(); !open || target != 2 {
		t.Error("form must remain open and bound to its block on failure")
	}
	if c.CommentStatus != "duplicate" {
		t.Errorf("server message should be surfaced inline, got %q", c.CommentStatus)
	}
	if c.Store.HasComments(2) {
		t.Error("no optimistic mutation on failure")
	}
}

func TestSubmitWithoutOpenFormIsRejected(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)

	if err := c.SubmitComment(context.Background(), "text"); err == nil {
		t.Fatal("expected rejection with no open form")
	}
	if api.submitCalls != 0 {
		t.Errorf("no network call expected, got %d", api.submitCalls)
	}
}

func TestDeleteCommentDeclinedConfirmationMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)
	c.Page.OpenCommentForm(0)
	c.SubmitComment(context.Background(), "to keep")

	c.Confirm = func() bool { return false }
	if err := c.DeleteComment(context.Background(), 1); err != nil {
		t.Fatalf("declined delete must not error: %v", err)
	}
	if api.deleteCalls != 0 {
		t.Errorf("no network call after declined confirmation, got %d", api.deleteCalls)
	}
	if !c.Store.HasComments(0) {
		t.Error("comment must remain displayed")
	}
}

func TestDeleteLastCommentRemovesGroupAndColor(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)
	c.Page.OpenCommentForm(0)
	c.SubmitComment(context.Background(), "one")
	c.Page.OpenCommentForm(0)
	c.SubmitComment(context.Background(), "two")

	faded := 0
	c.Fade = func() { faded++ }

	if err := c.DeleteComment(context.Background(), 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !c.Store.HasComments(0) {
		t.Fatal("group must survive while a comment remains")
	}

	if err := c.DeleteComment(context.Background(), 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if c.Store.HasComments(0) {
		t.Error("group must disappear with its last comment")
	}
	if faded != 2 {
		t.Errorf("fade hook should run per deletion, got %d", faded)
	}

	html, _ := c.Scenario().HTML()
	if strings.Contains(html, "highlight-color-0") {
		t.Errorf("block 0 must lose its color: %s", html)
	}
	panelHTML, err := c.PanelHTML()
	if err != nil {
		t.Fatalf("panel: %v", err)
	}
	if !strings.Contains(panelHTML, "no-comments-msg") {
		t.Error("panel should fall back to the placeholder")
	}
}

func TestDeleteFailureLeavesCommentAndAlerts(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)
	c.Page.OpenCommentForm(0)
	c.SubmitComment(context.Background(), "kept")

	api.deleteErr = errors.New("not yours")
	var alerted string
	c.Alert = func(msg string) { alerted = msg }

	if err := c.DeleteComment(context.Background(), 1); err == nil {
		t.Fatal("expected delete failure")
	}
	if !c.Store.HasComments(0) {
		t.Error("comment must stay on failure")
	}
	if !strings.Contains(alerted, "not yours") {
		t.Errorf("alert should carry the error, got %q", alerted)
	}
}

func TestSaveScenarioSuccessReindexesFromZero(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)

	c.Page.BeginEdit(editor.FieldScenario)
	newText := "Only one paragraph now.\n"
	if err := c.SaveField(context.Background(), editor.FieldScenario, newText); err != nil {
		t.Fatalf("save: %v", err)
	}

	if c.Page.State(editor.FieldScenario) != editor.Viewing {
		t.Error("successful save returns to viewing")
	}
	blocksNow := c.Scenario().Blocks()
	if len(blocksNow) != 1 || blocksNow[0].Index != 0 {
		t.Errorf("expected a single block indexed from 0, got %+v", blocksNow)
	}
}

func TestSaveFieldFailureStaysEditing(t *testing.T) {
	api := &fakeAPI{saveFieldErr: errors.New("forbidden")}
	c := newTestController(t, api)

	c.Page.BeginEdit(editor.FieldPlan)
	if err := c.SaveField(context.Background(), editor.FieldPlan, "draft"); err == nil {
		t.Fatal("expected failure")
	}
	if c.Page.State(editor.FieldPlan) != editor.Editing {
		t.Error("save failure must not force a state transition")
	}
	if c.FieldStatus[editor.FieldPlan] != "forbidden" {
		t.Errorf("inline error expected, got %q", c.FieldStatus[editor.FieldPlan])
	}
}

func TestSaveTitleUpdatesDisplayedAndPageTitle(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)

	if err := c.SaveTitle(context.Background(), "Episode One"); err != nil {
		t.Fatalf("save title: %v", err)
	}
	if c.Title() != "Episode One" || c.PageTitle() != "Episode One" {
		t.Errorf("titles = %q / %q", c.Title(), c.PageTitle())
	}

	// Unchanged title cancels silently.
	if err := c.SaveTitle(context.Background(), "Episode One"); err != nil {
		t.Fatalf("unchanged title must cancel, got %v", err)
	}
}

func TestSaveOrderFailureAlerts(t *testing.T) {
	api := &fakeAPI{saveOrderErr: errors.New("offline")}
	c := newTestController(t, api)

	var alerted string
	c.Alert = func(msg string) { alerted = msg }
	c.SaveOrder(context.Background(), []int64{3, 1, 2})
	if !strings.Contains(alerted, "offline") {
		t.Errorf("alert should name the error, got %q", alerted)
	}
}

func TestDispatcherHandlesTitleAndDeleteActions(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api)
	c.Page.OpenCommentForm(0)
	c.SubmitComment(context.Background(), "to delete")

	d := c.Dispatcher()

	if err := d.Dispatch(editor.ActionEditTitle, nil); err != nil {
		t.Fatalf("edit title: %v", err)
	}
	if c.Page.State(editor.FieldTitle) != editor.Editing {
		t.Error("edit-title action should begin editing the title")
	}

	// The panel's delete buttons carry the comment id as element data.
	if err := d.Dispatch(editor.ActionDeleteComment, map[string]string{"comment-id": "1"}); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	if api.deleteCalls != 1 {
		t.Errorf("delete calls = %d, want 1", api.deleteCalls)
	}
	if c.Store.HasComments(0) {
		t.Error("dispatched delete should remove the comment")
	}

	// Malformed ids do nothing, matching unknown-action behaviour.
	if err := d.Dispatch(editor.ActionDeleteComment, map[string]string{"comment-id": "nope"}); err != nil {
		t.Fatalf("bad id: %v", err)
	}
	if api.deleteCalls != 1 {
		t.Errorf("delete calls after bad id = %d, want 1", api.deleteCalls)
	}
}

func TestInitialSnapshotIsConsultedOnce(t *testing.T) {
	api := &fakeAPI{}
	c := NewController(api)
	snapshot := map[int][]comments.Comment{
		0: {{ID: 100, BlockIndex: 0, Text: "loaded"}},
	}
	if err := c.Init("Ep", "", "A.\n\nB.\n", snapshot); err != nil {
		t.Fatalf("init: %v", err)
	}

	html, _ := c.Scenario().HTML()
	if !strings.Contains(html, "highlight-color-0") {
		t.Error("loaded comments should color their block")
	}

	// After deleting the loaded comment the store, not the snapshot, decides.
	c.DeleteComment(context.Background(), 100)
	if err := c.Scenario().Rerender(c.Scenario().Raw(), c.Store.HasComments); err != nil {
		t.Fatalf("rerender: %v", err)
	}
	html, _ = c.Scenario().HTML()
	if strings.Contains(html, "highlight-color-0") {
		t.Error("re-render must consult the live store, not the initial snapshot")
	}
}

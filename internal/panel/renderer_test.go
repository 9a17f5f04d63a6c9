package panel

import (
	"strings"
	"testing"

	"redbook/api/internal/comments"
)

func TestRenderEmptyStoreShowsPlaceholder(t *testing.T) {
	s := comments.NewStore(nil)
	out, err := Render(s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "no-comments-msg") {
		t.Errorf("expected placeholder, got: %s", out)
	}
	if strings.Contains(out, "comment-group") {
		t.Errorf("no groups expected: %s", out)
	}
}

func TestRenderGroupsSortedWithHeaders(t *testing.T) {
	s := comments.NewStore(nil)
	s.Add(comments.Comment{ID: 1, BlockIndex: 3, Text: "third", Author: "hakim", Timestamp: "2026-01-02 10:00"})
	s.Add(comments.Comment{ID: 2, BlockIndex: 1, Text: "first", Author: "jawhar", Timestamp: "2026-01-02 10:05"})

	out, err := Render(s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "no-comments-msg") {
		t.Error("placeholder must be hidden while groups exist")
	}

	// Headers announce the 1-based paragraph number, groups ordered by index.
	p2 := strings.Index(out, "Comments for paragraph 2")
	p4 := strings.Index(out, "Comments for paragraph 4")
	if p2 < 0 || p4 < 0 {
		t.Fatalf("missing group headers: %s", out)
	}
	if p2 > p4 {
		t.Error("groups must render in ascending block-index order")
	}
	if !strings.Contains(out, "highlight-color-1") || !strings.Contains(out, "highlight-color-3") {
		t.Error("group border must carry the block's palette class")
	}
}

func TestRenderDeleteAffordanceOnlyWhenAllowed(t *testing.T) {
	s := comments.NewStore(nil)
	s.Add(comments.Comment{ID: 5, BlockIndex: 0, Text: "mine", Author: "mohamed", CanDelete: true})
	s.Add(comments.Comment{ID: 6, BlockIndex: 0, Text: "theirs", Author: "yassine", CanDelete: false})

	out, err := Render(s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `data-comment-id="5" title="Delete comment"`) {
		t.Errorf("deletable comment should carry the delete button: %s", out)
	}
	if strings.Contains(out, `data-comment-id="6" title="Delete comment"`) {
		t.Errorf("non-deletable comment must not carry a delete button: %s", out)
	}
}

func TestRenderEscapesCommentText(t *testing.T) {
	s := comments.NewStore(nil)
	s.Add(comments.Comment{ID: 1, BlockIndex: 0, Text: `<script>alert("x")</script>`})

	out, err := Render(s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("comment text must be escaped: %s", out)
	}
}

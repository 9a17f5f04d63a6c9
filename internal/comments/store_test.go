package comments

import (
	"reflect"
	"testing"
)

// recordingHighlighter records the latest highlight state per block index.
type recordingHighlighter struct {
	state map[int]bool
}

func newRecordingHighlighter() *recordingHighlighter {
	return &recordingHighlighter{state: make(map[int]bool)}
}

func (h *recordingHighlighter) SetHighlight(blockIndex int, hasComments bool) {
	h.state[blockIndex] = hasComments
}

func groupIndexes(s *Store) []int {
	var out []int
	for _, g := range s.Groups() {
		out = append(out, g.BlockIndex)
	}
	return out
}

func TestAddKeepsGroupsSortedByIndex(t *testing.T) {
	s := NewStore(nil)
	s.Add(Comment{ID: 1, BlockIndex: 3, Text: "late"})
	s.Add(Comment{ID: 2, BlockIndex: 1, Text: "early"})
	s.Add(Comment{ID: 3, BlockIndex: 3, Text: "another"})

	if got, want := groupIndexes(s), []int{1, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("group order = %v, want %v", got, want)
	}
	if got := len(s.Groups()[1].Comments); got != 2 {
		t.Errorf("block 3 group has %d comments, want 2", got)
	}
}

func TestRemoveLastCommentDeletesGroup(t *testing.T) {
	h := newRecordingHighlighter()
	s := NewStore(h)
	s.Add(Comment{ID: 1, BlockIndex: 2})
	s.Add(Comment{ID: 2, BlockIndex: 2})
	s.Add(Comment{ID: 3, BlockIndex: 5})

	// Removing a non-last comment keeps the group and the highlight.
	if idx, ok := s.Remove(1); !ok || idx != 2 {
		t.Fatalf("Remove(1) = (%d, %v)", idx, ok)
	}
	if !s.HasComments(2) {
		t.Fatal("group 2 should survive while it has a comment")
	}
	if !h.state[2] {
		t.Error("block 2 highlight should remain while its group is non-empty")
	}

	// Removing the last comment deletes the group and withdraws the color.
	if idx, ok := s.Remove(2); !ok || idx != 2 {
		t.Fatalf("Remove(2) = (%d, %v)", idx, ok)
	}
	if s.HasComments(2) {
		t.Error("emptied group must be removed immediately")
	}
	if h.state[2] {
		t.Error("block 2 highlight should be withdrawn with its group")
	}
	if got, want := groupIndexes(s), []int{5}; !reflect.DeepEqual(got, want) {
		t.Errorf("remaining groups = %v, want %v", got, want)
	}
}

func TestRemoveUnknownComment(t *testing.T) {
	s := NewStore(nil)
	s.Add(Comment{ID: 1, BlockIndex: 0})
	if _, ok := s.Remove(99); ok {
		t.Error("removing an unknown id must report false")
	}
	if !s.HasComments(0) {
		t.Error("unrelated groups must be untouched")
	}
}

func TestLoadAllReplacesStore(t *testing.T) {
	h := newRecordingHighlighter()
	s := NewStore(h)
	s.Add(Comment{ID: 1, BlockIndex: 9})

	s.LoadAll(map[int][]Comment{
		4: {{ID: 10, BlockIndex: 4}},
		0: {{ID: 11, BlockIndex: 0}, {ID: 12, BlockIndex: 0}},
		7: {},
	})

	if got, want := groupIndexes(s), []int{0, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("groups after LoadAll = %v, want %v", got, want)
	}
	if s.HasComments(9) {
		t.Error("LoadAll must replace previous contents")
	}
	if s.HasComments(7) {
		t.Error("empty snapshot groups must not be created")
	}
	if !h.state[0] || !h.state[4] {
		t.Error("loaded groups must signal their highlight")
	}
	if h.state[9] {
		t.Error("replaced group must have its highlight withdrawn")
	}
}

func TestReloadWithFewerGroupsClearsStaleHighlights(t *testing.T) {
	h := newRecordingHighlighter()
	s := NewStore(h)
	s.LoadAll(map[int][]Comment{
		1: {{ID: 1, BlockIndex: 1}},
		5: {{ID: 2, BlockIndex: 5}},
	})

	s.LoadAll(map[int][]Comment{
		1: {{ID: 3, BlockIndex: 1}},
	})

	if !h.state[1] {
		t.Error("surviving group keeps its highlight")
	}
	if h.state[5] {
		t.Error("group absent from the reload must lose its highlight")
	}
	if got, want := groupIndexes(s), []int{1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}
}

func TestHighlightFollowsStoreState(t *testing.T) {
	h := newRecordingHighlighter()
	s := NewStore(h)

	s.Add(Comment{ID: 1, BlockIndex: 3})
	if !h.state[3] {
		t.Fatal("block gains color when its group becomes non-empty")
	}
	s.Remove(1)
	if h.state[3] {
		t.Fatal("block loses color when its group empties")
	}
	if !s.Empty() {
		t.Error("store should be empty")
	}
}

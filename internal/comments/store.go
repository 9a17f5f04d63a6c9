// Package comments holds the client-side view model for block-anchored
// comments: groups keyed by block index, kept sorted for the side panel.
// After the initial load the store is the only source of truth for whether
// a block has discussion attached.
package comments

import "sort"

// Comment is a user annotation attached to exactly one block by index.
type Comment struct {
	ID         int64  `json:"id"`
	BlockIndex int    `json:"block_index"`
	Text       string `json:"text"`
	Author     string `json:"author"`
	AuthorID   int64  `json:"author_id"`
	Timestamp  string `json:"timestamp"`
	CanDelete  bool   `json:"-"`
}

// Group is the set of comments sharing one block index. A group exists only
// while it has at least one comment.
type Group struct {
	BlockIndex int
	Comments   []Comment
}

// Highlighter receives has-comments transitions so the rendered block's
// color can track the store.
type Highlighter interface {
	SetHighlight(blockIndex int, hasComments bool)
}

type noopHighlighter struct{}

func (noopHighlighter) SetHighlight(int, bool) {}

// Store groups comments by block index. Groups stay sorted ascending by
// index across every mutation; mutations never reorder other groups.
type Store struct {
	groups      []Group
	highlighter Highlighter
}

func NewStore(h Highlighter) *Store {
	if h == nil {
		h = noopHighlighter{}
	}
	return &Store{highlighter: h}
}

// LoadAll replaces the entire store with the initial server snapshot. The
// snapshot is consulted exactly once; afterwards the store is authoritative.
func (s *Store) LoadAll(byBlock map[int][]Comment) {
	// Withdraw the previous groups' highlights first so a reload with fewer
	// groups leaves no stale colors behind.
	for _, group := range s.groups {
		if len(byBlock[group.BlockIndex]) == 0 {
			s.highlighter.SetHighlight(group.BlockIndex, false)
		}
	}
	s.groups = s.groups[:0]
	indexes := make([]int, 0, len(byBlock))
	for idx, list := range byBlock {
		if len(list) == 0 {
			continue
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		group := Group{BlockIndex: idx, Comments: append([]Comment(nil), byBlock[idx]...)}
		s.groups = append(s.groups, group)
		s.highlighter.SetHighlight(idx, true)
	}
}

// Add inserts a comment into its block's group, creating the group at its
// sorted position if absent.
func (s *Store) Add(c Comment) {
	pos := sort.Search(len(s.groups), func(i int) bool {
		return s.groups[i].BlockIndex >= c.BlockIndex
	})
	if pos < len(s.groups) && s.groups[pos].BlockIndex == c.BlockIndex {
		s.groups[pos].Comments = append(s.groups[pos].Comments, c)
	} else {
		s.groups = append(s.groups, Group{})
		copy(s.groups[pos+1:], s.groups[pos:])
		s.groups[pos] = Group{BlockIndex: c.BlockIndex, Comments: []Comment{c}}
	}
	s.highlighter.SetHighlight(c.BlockIndex, true)
}

// Remove deletes the comment by id. An emptied group is removed immediately
// and the block's highlight is withdrawn. Returns the affected block index
// and whether a comment was removed.
func (s *Store) Remove(commentID int64) (int, bool) {
	for gi := range s.groups {
		group := &s.groups[gi]
		for ci, c := range group.Comments {
			if c.ID != commentID {
				continue
			}
			group.Comments = append(group.Comments[:ci], group.Comments[ci+1:]...)
			idx := group.BlockIndex
			if len(group.Comments) == 0 {
				s.groups = append(s.groups[:gi], s.groups[gi+1:]...)
				s.highlighter.SetHighlight(idx, false)
			}
			return idx, true
		}
	}
	return 0, false
}

// Groups returns the groups in ascending block-index order.
func (s *Store) Groups() []Group {
	return s.groups
}

// HasComments reports whether the block at index has a non-empty group.
func (s *Store) HasComments(blockIndex int) bool {
	pos := sort.Search(len(s.groups), func(i int) bool {
		return s.groups[i].BlockIndex >= blockIndex
	})
	return pos < len(s.groups) && s.groups[pos].BlockIndex == blockIndex
}

// Empty reports whether no groups exist.
func (s *Store) Empty() bool {
	return len(s.groups) == 0
}

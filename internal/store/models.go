package store

import "time"

// Episode status values. The dashboard reports counts per status.
const (
	StatusDraft    = "draft"
	StatusReview   = "review"
	StatusComplete = "complete"
)

// ValidStatus reports whether s is one of the known episode statuses.
func ValidStatus(s string) bool {
	return s == StatusDraft || s == StatusReview || s == StatusComplete
}

// DefaultPlanMarkdown seeds the plan field of every new episode with the
// section skeleton writers fill in.
const DefaultPlanMarkdown = `## Success indicators
(list the indicators here)

---

## Assignment
(describe the assignment here)

---

## Walkthrough of the episode (user experience)
(describe the experience here)

---

## References
(list the supporting references here)

---

## Goal of the episode
(state a clear, measurable goal)

---

## Topics
(list the topics to cover)

---`

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
}

type Track struct {
	ID   int64
	Name string
}

type Episode struct {
	ID           int64
	Title        string
	Plan         string
	Scenario     string
	Status       string
	TrackID      int64
	TrackName    string
	DisplayOrder int
	LastUpdated  time.Time
	Assignees    []User
}

type Comment struct {
	ID         int64
	EpisodeID  int64
	UserID     int64
	Author     string
	BlockIndex int
	Text       string
	Timestamp  time.Time
}

// Metrics summarizes the episode corpus for the dashboard.
type Metrics struct {
	Total    int
	Draft    int
	Review   int
	Complete int
}

// Snapshot is a full copy of the editable state, used by backups.
type Snapshot struct {
	TakenAt  time.Time
	Users    []User
	Tracks   []Track
	Episodes []Episode
	Comments []Comment
}

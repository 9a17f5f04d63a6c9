package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"redbook/api/internal/authpw"
	"redbook/api/internal/export"
	"redbook/api/internal/search"
	"redbook/api/internal/session"
	"redbook/api/internal/store"
)

// timestampLayout is the wire format for comment timestamps.
const timestampLayout = "2006-01-02 15:04"

// Session identifies the logged-in caller for one request.
type Session struct {
	Token    string
	UserID   int64
	Username string
	IsAdmin  bool
}

type dataStore interface {
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)

	CreateTrack(ctx context.Context, name string) (store.Track, error)
	GetTrack(ctx context.Context, id int64) (store.Track, error)
	ListTracks(ctx context.Context) ([]store.Track, error)

	CreateEpisode(ctx context.Context, title string, trackID, creatorID int64) (store.Episode, error)
	GetEpisode(ctx context.Context, id int64) (store.Episode, error)
	ListEpisodes(ctx context.Context, trackID int64) ([]store.Episode, error)
	DeleteEpisode(ctx context.Context, id int64) error
	UpdateEpisodeField(ctx context.Context, id int64, field, content string) error
	UpdateEpisodeTitle(ctx context.Context, id int64, title string) error
	ReorderEpisodes(ctx context.Context, orderedIDs []int64) error
	ChangeEpisodeTrack(ctx context.Context, id, trackID int64) error
	ChangeEpisodeStatus(ctx context.Context, id int64, status string) error
	Metrics(ctx context.Context, trackID int64) (store.Metrics, error)

	AssignUser(ctx context.Context, userID, episodeID int64) error
	UnassignUser(ctx context.Context, userID, episodeID int64) error

	AddComment(ctx context.Context, episodeID, userID int64, blockIndex int, text string) (store.Comment, error)
	ListComments(ctx context.Context, episodeID int64) ([]store.Comment, error)
	GetComment(ctx context.Context, id int64) (store.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
}

type sessionStore interface {
	Create(ctx context.Context, userID int64, username string, isAdmin bool) (string, error)
	Lookup(ctx context.Context, token string) (session.Session, error)
	Revoke(ctx context.Context, token string) error
}

type searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexEpisode(record search.EpisodeRecord)
	DeleteEpisode(id int64)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Service implements the application operations behind the HTTP layer.
type Service struct {
	store    dataStore
	sessions sessionStore
	auth     *authpw.Service
	search   searcher // nil when search is not configured
	export   exporter // nil when export is not configured
	dbPing   pinger
}

func NewService(dataStore dataStore, sessions sessionStore, auth *authpw.Service) *Service {
	return &Service{store: dataStore, sessions: sessions, auth: auth}
}

// WithSearch attaches the search facade.
func (s *Service) WithSearch(search searcher) *Service {
	s.search = search
	return s
}

// WithExport attaches the episode exporter.
func (s *Service) WithExport(export exporter) *Service {
	s.export = export
	return s
}

// WithPinger attaches a database health probe for readiness checks.
func (s *Service) WithPinger(p pinger) *Service {
	s.dbPing = p
	return s
}

// Ping reports database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	if s.dbPing == nil {
		return nil
	}
	return s.dbPing.Ping(ctx)
}

// --- auth ---

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.auth.SignIn(ctx, username, password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, "Invalid username or password")
	}
	if err != nil {
		return Session{}, err
	}

	token, err := s.sessions.Create(ctx, user.ID, user.Username, user.IsAdmin)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{Token: token, UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, token)
}

// SessionFromToken resolves a bearer token into a session.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, domainError(http.StatusUnauthorized, "Login required")
	}
	sess, err := s.sessions.Lookup(ctx, token)
	if errors.Is(err, session.ErrNoSession) {
		return Session{}, domainError(http.StatusUnauthorized, "Login required")
	}
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: sess.UserID, Username: sess.Username, IsAdmin: sess.IsAdmin}, nil
}

// --- dashboard ---

type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type EpisodeSummary struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Status       string        `json:"status"`
	TrackID      int64         `json:"track_id"`
	TrackName    string        `json:"track_name"`
	DisplayOrder int           `json:"display_order"`
	LastUpdated  string        `json:"last_updated"`
	Assignees    []UserSummary `json:"assignees"`
}

type TrackSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type DashboardView struct {
	Metrics  MetricsView      `json:"metrics"`
	Tracks   []TrackSummary   `json:"tracks"`
	Episodes []EpisodeSummary `json:"episodes"`
}

type MetricsView struct {
	Total    int `json:"total"`
	Draft    int `json:"draft"`
	Review   int `json:"review"`
	Complete int `json:"complete"`
}

// Dashboard lists episodes in display order with status metrics, optionally
// filtered to one track.
func (s *Service) Dashboard(ctx context.Context, trackID int64) (DashboardView, error) {
	if trackID != 0 {
		if _, err := s.store.GetTrack(ctx, trackID); errors.Is(err, store.ErrNotFound) {
			// Unknown track filter falls back to showing everything.
			trackID = 0
		} else if err != nil {
			return DashboardView{}, err
		}
	}

	metrics, err := s.store.Metrics(ctx, trackID)
	if err != nil {
		return DashboardView{}, err
	}
	tracks, err := s.store.ListTracks(ctx)
	if err != nil {
		return DashboardView{}, err
	}
	episodes, err := s.store.ListEpisodes(ctx, trackID)
	if err != nil {
		return DashboardView{}, err
	}

	view := DashboardView{
		Metrics: MetricsView{
			Total:    metrics.Total,
			Draft:    metrics.Draft,
			Review:   metrics.Review,
			Complete: metrics.Complete,
		},
		Tracks:   []TrackSummary{},
		Episodes: []EpisodeSummary{},
	}
	for _, t := range tracks {
		view.Tracks = append(view.Tracks, TrackSummary{ID: t.ID, Name: t.Name})
	}
	for _, ep := range episodes {
		view.Episodes = append(view.Episodes, episodeSummary(ep))
	}
	return view, nil
}

func episodeSummary(ep store.Episode) EpisodeSummary {
	summary := EpisodeSummary{
		ID:           ep.ID,
		Title:        ep.Title,
		Status:       ep.Status,
		TrackID:      ep.TrackID,
		TrackName:    ep.TrackName,
		DisplayOrder: ep.DisplayOrder,
		LastUpdated:  ep.LastUpdated.Format(timestampLayout),
		Assignees:    []UserSummary{},
	}
	for _, u := range ep.Assignees {
		summary.Assignees = append(summary.Assignees, UserSummary{ID: u.ID, Username: u.Username})
	}
	return summary
}

// --- episodes ---

type CommentPayload struct {
	ID         int64  `json:"id"`
	BlockIndex int    `json:"block_index"`
	Text       string `json:"text"`
	Author     string `json:"author"`
	AuthorID   int64  `json:"author_id"`
	Timestamp  string `json:"timestamp"`
}

type EpisodeView struct {
	EpisodeSummary
	Plan        string                      `json:"plan"`
	Scenario    string                      `json:"scenario"`
	Comments    map[string][]CommentPayload `json:"comments_by_block"`
	IsAssigned  bool                        `json:"is_assigned"`
	UserIsAdmin bool                        `json:"user_is_admin"`
}

// Episode returns the full payload for the episode page: raw Markdown for
// both fields plus comments grouped by block index.
func (s *Service) Episode(ctx context.Context, sess Session, id int64) (EpisodeView, error) {
	ep, err := s.store.GetEpisode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return EpisodeView{}, domainError(http.StatusNotFound, "Episode not found")
	}
	if err != nil {
		return EpisodeView{}, err
	}

	comments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return EpisodeView{}, err
	}

	view := EpisodeView{
		EpisodeSummary: episodeSummary(ep),
		Plan:           ep.Plan,
		Scenario:       ep.Scenario,
		Comments:       map[string][]CommentPayload{},
		IsAssigned:     isAssigned(ep, sess.UserID),
		UserIsAdmin:    sess.IsAdmin,
	}
	for _, c := range comments {
		key := strconv.Itoa(c.BlockIndex)
		view.Comments[key] = append(view.Comments[key], commentPayload(c))
	}
	return view, nil
}

func commentPayload(c store.Comment) CommentPayload {
	return CommentPayload{
		ID:         c.ID,
		BlockIndex: c.BlockIndex,
		Text:       c.Text,
		Author:     c.Author,
		AuthorID:   c.UserID,
		Timestamp:  c.Timestamp.Format(timestampLayout),
	}
}

func isAssigned(ep store.Episode, userID int64) bool {
	for _, u := range ep.Assignees {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// CreateEpisode adds an episode to the end of a track and assigns the
// creator.
func (s *Service) CreateEpisode(ctx context.Context, sess Session, title string, trackID int64) (EpisodeSummary, error) {
	if title == "" {
		return EpisodeSummary{}, domainError(http.StatusBadRequest, "Title is required")
	}
	track, err := s.store.GetTrack(ctx, trackID)
	if errors.Is(err, store.ErrNotFound) {
		return EpisodeSummary{}, domainError(http.StatusBadRequest, "The selected track is not valid")
	}
	if err != nil {
		return EpisodeSummary{}, err
	}

	ep, err := s.store.CreateEpisode(ctx, title, trackID, sess.UserID)
	if errors.Is(err, store.ErrDuplicate) {
		return EpisodeSummary{}, domainError(http.StatusConflict,
			fmt.Sprintf("An episode titled %q already exists in this track", title))
	}
	if err != nil {
		return EpisodeSummary{}, err
	}
	ep.TrackName = track.Name
	s.indexEpisode(ep)
	return episodeSummary(ep), nil
}

// DeleteEpisode removes an episode. Only assignees and admins may delete.
func (s *Service) DeleteEpisode(ctx context.Context, sess Session, id int64) error {
	ep, err := s.store.GetEpisode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "Episode not found")
	}
	if err != nil {
		return err
	}
	if !isAssigned(ep, sess.UserID) && !sess.IsAdmin {
		return domainError(http.StatusForbidden, "Only assigned users or admins can delete episodes")
	}
	if err := s.store.DeleteEpisode(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteEpisode(id)
	}
	return nil
}

// UpdateEpisode replaces the plan or scenario Markdown in full. Only
// assignees may edit. A nil field is left untouched.
func (s *Service) UpdateEpisode(ctx context.Context, sess Session, id int64, plan, scenario *string) (string, error) {
	ep, err := s.store.GetEpisode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", domainError(http.StatusNotFound, "Episode not found")
	}
	if err != nil {
		return "", err
	}
	if !isAssigned(ep, sess.UserID) {
		return "", domainError(http.StatusForbidden, "Not allowed. You must be assigned to edit.")
	}

	updated := false
	if plan != nil && *plan != ep.Plan {
		if err := s.store.UpdateEpisodeField(ctx, id, "plan", *plan); err != nil {
			return "", err
		}
		ep.Plan = *plan
		updated = true
	}
	if scenario != nil && *scenario != ep.Scenario {
		if err := s.store.UpdateEpisodeField(ctx, id, "scenario", *scenario); err != nil {
			return "", err
		}
		ep.Scenario = *scenario
		updated = true
	}

	if !updated {
		return "No changes detected", nil
	}
	s.indexEpisode(ep)
	return "Episode updated", nil
}

// UpdateTitle renames an episode. Titles stay unique within a track.
func (s *Service) UpdateTitle(ctx context.Context, sess Session, id int64, newTitle string) (string, error) {
	if newTitle == "" {
		return "", domainError(http.StatusBadRequest, "The title cannot be empty")
	}

	ep, err := s.store.GetEpisode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", domainError(http.StatusNotFound, "Episode not found")
	}
	if err != nil {
		return "", err
	}
	if !isAssigned(ep, sess.UserID) && !sess.IsAdmin {
		return "", domainError(http.StatusForbidden, "Not allowed to edit this title")
	}

	err = s.store.UpdateEpisodeTitle(ctx, id, newTitle)
	if errors.Is(err, store.ErrDuplicate) {
		return "", domainError(http.StatusBadRequest,
			fmt.Sprintf("The title %q is already used in this track", newTitle))
	}
	if err != nil {
		return "", err
	}

	ep.Title = newTitle
	s.indexEpisode(ep)
	log.Printf("episode %d retitled to %q by %s", id, newTitle, sess.Username)
	return newTitle, nil
}

// UpdateOrder persists a full episode ordering.
func (s *Service) UpdateOrder(ctx context.Context, orderedIDs []int64) error {
	if len(orderedIDs) == 0 {
		return domainError(http.StatusBadRequest, "Invalid data")
	}
	err := s.store.ReorderEpisodes(ctx, orderedIDs)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusBadRequest, "Unknown episode in order list")
	}
	return err
}

// ChangeTrack moves an episode to the end of another track.
func (s *Service) ChangeTrack(ctx context.Context, sess Session, id, newTrackID int64) error {
	ep, err := s.store.GetEpisode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "Episode not found")
	}
	if err != nil {
		return err
	}
	if !isAssigned(ep, sess.UserID) && !sess.IsAdmin {
		return domainError(http.StatusForbidden, "Only assigned users or admins can change the track")
	}
	if ep.TrackID == newTrackID {
		return domainError(http.StatusBadRequest, "The episode is already in this track")
	}
	if _, err := s.store.GetTrack(ctx, newTrackID); errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusBadRequest, "The selected track is not valid")
	} else if err != nil {
		return err
	}

	if err := s.store.ChangeEpisodeTrack(ctx, id, newTrackID); err != nil {
		return err
	}
	ep.TrackID = newTrackID
	s.indexEpisode(ep)
	return nil
}

// ChangeStatus sets the episode workflow status.
func (s *Service) ChangeStatus(ctx context.Context, sess Session, id int64, status string) error {
	if !store.ValidStatus(status) {
		return domainError(http.StatusBadRequest, "The selected status is not valid")
	}
	ep, err := s.store.GetEpisode(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "Episode not found")
	}
	if err != nil {
		return err
	}
	if !isAssigned(ep, sess.UserID) && !sess.IsAdmin {
		return domainError(http.StatusForbidden, "Only assigned users or admins can change the status")
	}
	if ep.Status == status {
		return domainError(http.StatusBadRequest, "The episode already has this status")
	}

	if err := s.store.ChangeEpisodeStatus(ctx, id, status); err != nil {
		return err
	}
	ep.Status = status
	s.indexEpisode(ep)
	return nil
}

// --- assignments ---

func (s *Service) AssignUser(ctx context.Context, episodeID, userID int64) error {
	if _, err := s.store.GetEpisode(ctx, episodeID); errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "Episode or user not found")
	} else if err != nil {
		return err
	}
	if _, err := s.store.GetUserByID(ctx, userID); errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "Episode or user not found")
	} else if err != nil {
		return err
	}
	return s.store.AssignUser(ctx, userID, episodeID)
}

func (s *Service) UnassignSelf(ctx context.Context, sess Session, episodeID int64) error {
	if _, err := s.store.GetEpisode(ctx, episodeID); errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "Episode not found")
	} else if err != nil {
		return err
	}
	return s.store.UnassignUser(ctx, sess.UserID, episodeID)
}

// --- comments ---

// AddComment attaches a comment to a scenario block. Only assignees may
// comment.
func (s *Service) AddComment(ctx context.Context, sess Session, episodeID int64, blockIndex int, text string) (CommentPayload, error) {
	ep, err := s.store.GetEpisode(ctx, episodeID)
	if errors.Is(err, store.ErrNotFound) {
		return CommentPayload{}, domainError(http.StatusNotFound, "Episode not found")
	}
	if err != nil {
		return CommentPayload{}, err
	}
	if !isAssigned(ep, sess.UserID) {
		return CommentPayload{}, domainError(http.StatusForbidden, "Not allowed. You must be assigned to comment.")
	}
	if text == "" {
		return CommentPayload{}, domainError(http.StatusBadRequest, "Block index or comment text missing or invalid")
	}
	if blockIndex < 0 {
		return CommentPayload{}, domainError(http.StatusBadRequest, "Invalid block index")
	}

	comment, err := s.store.AddComment(ctx, episodeID, sess.UserID, blockIndex, text)
	if err != nil {
		return CommentPayload{}, err
	}
	return commentPayload(comment), nil
}

// DeleteComment removes a comment. Only the author or an admin may delete.
// Returns the block index the comment was attached to.
func (s *Service) DeleteComment(ctx context.Context, sess Session, commentID int64) (int, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, domainError(http.StatusNotFound, "Comment not found")
	}
	if err != nil {
		return 0, err
	}
	if comment.UserID != sess.UserID && !sess.IsAdmin {
		return 0, domainError(http.StatusForbidden, "Not allowed to delete this comment")
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return 0, err
	}
	return comment.BlockIndex, nil
}

// --- search / export / admin ---

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) Export(ctx context.Context, id int64, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "Export is not configured")
	}
	result, err := s.export.Export(ctx, export.Request{EpisodeID: id, Format: format})
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainError(http.StatusNotFound, "Episode not found")
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "Export dependencies are not installed")
	}
	return result, err
}

func (s *Service) Users(ctx context.Context) ([]UserSummary, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	summaries := []UserSummary{}
	for _, u := range users {
		summaries = append(summaries, UserSummary{ID: u.ID, Username: u.Username})
	}
	return summaries, nil
}

func (s *Service) Tracks(ctx context.Context) ([]TrackSummary, error) {
	tracks, err := s.store.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	summaries := []TrackSummary{}
	for _, t := range tracks {
		summaries = append(summaries, TrackSummary{ID: t.ID, Name: t.Name})
	}
	return summaries, nil
}

// CreateTrack adds a track. Admin only.
func (s *Service) CreateTrack(ctx context.Context, sess Session, name string) (TrackSummary, error) {
	if !sess.IsAdmin {
		return TrackSummary{}, domainError(http.StatusForbidden, "Only admins can create tracks")
	}
	if name == "" {
		return TrackSummary{}, domainError(http.StatusBadRequest, "Track name is required")
	}
	track, err := s.store.CreateTrack(ctx, name)
	if errors.Is(err, store.ErrDuplicate) {
		return TrackSummary{}, domainError(http.StatusConflict, "A track with this name already exists")
	}
	if err != nil {
		return TrackSummary{}, err
	}
	return TrackSummary{ID: track.ID, Name: track.Name}, nil
}

// Bootstrap seeds the initial admin account and tracks on an empty database.
func (s *Service) Bootstrap(ctx context.Context, adminUser, adminPassword string) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	hash, err := authpw.HashPassword(adminPassword)
	if err != nil {
		return err
	}
	if _, err := s.store.CreateUser(ctx, adminUser, hash, true); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	for _, name := range []string{"Track one: foundations", "Track two: advanced"} {
		if _, err := s.store.CreateTrack(ctx, name); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("seed track: %w", err)
		}
	}
	log.Printf("seeded admin user %q and initial tracks", adminUser)
	return nil
}

func (s *Service) indexEpisode(ep store.Episode) {
	if s.search == nil {
		return
	}
	s.search.IndexEpisode(search.EpisodeRecord{
		ID:       ep.ID,
		Title:    ep.Title,
		Plan:     ep.Plan,
		Scenario: ep.Scenario,
		TrackID:  ep.TrackID,
		Status:   ep.Status,
	})
}

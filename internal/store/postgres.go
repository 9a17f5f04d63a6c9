package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors the HTTP layer maps onto response codes.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
		RETURNING id, username, password_hash, is_admin
	`, username, passwordHash, isAdmin).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", username, ErrDuplicate)
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_admin FROM users WHERE username=$1`,
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_admin FROM users WHERE id=$1`,
		id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user %d: %w", id, err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, is_admin FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- tracks ---

func (s *PostgresStore) CreateTrack(ctx context.Context, name string) (Track, error) {
	var track Track
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tracks (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name
	`, name).Scan(&track.ID, &track.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Track{}, fmt.Errorf("track %s: %w", name, ErrDuplicate)
	}
	if err != nil {
		return Track{}, fmt.Errorf("insert track: %w", err)
	}
	return track, nil
}

func (s *PostgresStore) GetTrack(ctx context.Context, id int64) (Track, error) {
	var track Track
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM tracks WHERE id=$1`, id).
		Scan(&track.ID, &track.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Track{}, ErrNotFound
	}
	if err != nil {
		return Track{}, fmt.Errorf("lookup track %d: %w", id, err)
	}
	return track, nil
}

func (s *PostgresStore) ListTracks(ctx context.Context) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tracks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// --- episodes ---

// CreateEpisode inserts at the end of the track's display order and assigns
// the creator. Titles are unique within a track.
func (s *PostgresStore) CreateEpisode(ctx context.Context, title string, trackID, creatorID int64) (Episode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Episode{}, fmt.Errorf("begin create episode: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM episodes WHERE title=$1 AND track_id=$2)`,
		title, trackID).Scan(&exists); err != nil {
		return Episode{}, fmt.Errorf("check episode title: %w", err)
	}
	if exists {
		return Episode{}, fmt.Errorf("episode %q: %w", title, ErrDuplicate)
	}

	var ep Episode
	err = tx.QueryRowContext(ctx, `
		INSERT INTO episodes (title, plan, scenario, status, track_id, display_order)
		VALUES ($1, $2, '', $3, $4,
			COALESCE((SELECT MAX(display_order)+1 FROM episodes WHERE track_id=$4), 0))
		RETURNING id, title, plan, scenario, status, track_id, display_order, last_updated
	`, title, DefaultPlanMarkdown, StatusDraft, trackID).
		Scan(&ep.ID, &ep.Title, &ep.Plan, &ep.Scenario, &ep.Status, &ep.TrackID, &ep.DisplayOrder, &ep.LastUpdated)
	if err != nil {
		return Episode{}, fmt.Errorf("insert episode: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assignments (user_id, episode_id) VALUES ($1, $2)`,
		creatorID, ep.ID); err != nil {
		return Episode{}, fmt.Errorf("assign creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Episode{}, fmt.Errorf("commit create episode: %w", err)
	}
	return ep, nil
}

func (s *PostgresStore) GetEpisode(ctx context.Context, id int64) (Episode, error) {
	var ep Episode
	err := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.title, e.plan, e.scenario, e.status, e.track_id, t.name,
			e.display_order, e.last_updated
		FROM episodes e JOIN tracks t ON t.id = e.track_id
		WHERE e.id=$1
	`, id).Scan(&ep.ID, &ep.Title, &ep.Plan, &ep.Scenario, &ep.Status,
		&ep.TrackID, &ep.TrackName, &ep.DisplayOrder, &ep.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return Episode{}, ErrNotFound
	}
	if err != nil {
		return Episode{}, fmt.Errorf("lookup episode %d: %w", id, err)
	}

	assignees, err := s.listAssignees(ctx, id)
	if err != nil {
		return Episode{}, err
	}
	ep.Assignees = assignees
	return ep, nil
}

// ListEpisodes returns episodes in display order, optionally filtered to one
// track (trackID 0 means all).
func (s *PostgresStore) ListEpisodes(ctx context.Context, trackID int64) ([]Episode, error) {
	const query = `
		SELECT e.id, e.title, e.plan, e.scenario, e.status, e.track_id, t.name,
			e.display_order, e.last_updated
		FROM episodes e JOIN tracks t ON t.id = e.track_id
		WHERE ($1 = 0 OR e.track_id = $1)
		ORDER BY e.display_order, e.id
	`
	rows, err := s.db.QueryContext(ctx, query, trackID)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.ID, &ep.Title, &ep.Plan, &ep.Scenario, &ep.Status,
			&ep.TrackID, &ep.TrackName, &ep.DisplayOrder, &ep.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range episodes {
		assignees, err := s.listAssignees(ctx, episodes[i].ID)
		if err != nil {
			return nil, err
		}
		episodes[i].Assignees = assignees
	}
	return episodes, nil
}

func (s *PostgresStore) DeleteEpisode(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM episodes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete episode %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEpisodeField persists a full replacement of the plan or scenario
// Markdown. Field must be "plan" or "scenario".
func (s *PostgresStore) UpdateEpisodeField(ctx context.Context, id int64, field, content string) error {
	var query string
	switch field {
	case "plan":
		query = `UPDATE episodes SET plan=$2, last_updated=NOW() WHERE id=$1`
	case "scenario":
		query = `UPDATE episodes SET scenario=$2, last_updated=NOW() WHERE id=$1`
	default:
		return fmt.Errorf("unknown episode field %q", field)
	}
	res, err := s.db.ExecContext(ctx, query, id, content)
	if err != nil {
		return fmt.Errorf("update episode %s: %w", field, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateEpisodeTitle(ctx context.Context, id int64, title string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM episodes other
			JOIN episodes self ON self.id=$1
			WHERE other.title=$2 AND other.track_id=self.track_id AND other.id<>$1)
	`, id, title).Scan(&exists); err != nil {
		return fmt.Errorf("check title: %w", err)
	}
	if exists {
		return fmt.Errorf("title %q: %w", title, ErrDuplicate)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET title=$2, last_updated=NOW() WHERE id=$1`, id, title)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderEpisodes rewrites display_order to match the given id sequence.
// Ids outside the sequence keep their order relative to each other.
func (s *PostgresStore) ReorderEpisodes(ctx context.Context, orderedIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	for position, id := range orderedIDs {
		res, err := tx.ExecContext(ctx,
			`UPDATE episodes SET display_order=$2 WHERE id=$1`, id, position)
		if err != nil {
			return fmt.Errorf("reorder episode %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("episode %d: %w", id, ErrNotFound)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ChangeEpisodeTrack(ctx context.Context, id, trackID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE episodes
		SET track_id=$2, last_updated=NOW(),
			display_order=COALESCE((SELECT MAX(display_order)+1 FROM episodes WHERE track_id=$2), 0)
		WHERE id=$1
	`, id, trackID)
	if err != nil {
		return fmt.Errorf("change track: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ChangeEpisodeStatus(ctx context.Context, id int64, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET status=$2, last_updated=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("change status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Metrics(ctx context.Context, trackID int64) (Metrics, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status='draft'),
			COUNT(*) FILTER (WHERE status='review'),
			COUNT(*) FILTER (WHERE status='complete')
		FROM episodes
		WHERE ($1 = 0 OR track_id = $1)
	`
	var m Metrics
	err := s.db.QueryRowContext(ctx, query, trackID).
		Scan(&m.Total, &m.Draft, &m.Review, &m.Complete)
	if err != nil {
		return Metrics{}, fmt.Errorf("episode metrics: %w", err)
	}
	return m, nil
}

// --- assignments ---

func (s *PostgresStore) AssignUser(ctx context.Context, userID, episodeID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments (user_id, episode_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, episode_id) DO NOTHING
	`, userID, episodeID)
	if err != nil {
		return fmt.Errorf("assign user %d to episode %d: %w", userID, episodeID, err)
	}
	return nil
}

func (s *PostgresStore) UnassignUser(ctx context.Context, userID, episodeID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM assignments WHERE user_id=$1 AND episode_id=$2`, userID, episodeID)
	if err != nil {
		return fmt.Errorf("unassign user %d from episode %d: %w", userID, episodeID, err)
	}
	return nil
}

func (s *PostgresStore) listAssignees(ctx context.Context, episodeID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.is_admin
		FROM assignments a JOIN users u ON u.id = a.user_id
		WHERE a.episode_id=$1
		ORDER BY u.username
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.IsAdmin); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- comments ---

func (s *PostgresStore) AddComment(ctx context.Context, episodeID, userID int64, blockIndex int, text string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (episode_id, user_id, block_index, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, episode_id, user_id, block_index, text, created_at
	`, episodeID, userID, blockIndex, text).
		Scan(&c.ID, &c.EpisodeID, &c.UserID, &c.BlockIndex, &c.Text, &c.Timestamp)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id=$1`, userID).Scan(&c.Author); err != nil {
		return Comment{}, fmt.Errorf("comment author: %w", err)
	}
	return c, nil
}

// ListComments returns all comments for an episode ordered by block index,
// oldest first within a block.
func (s *PostgresStore) ListComments(ctx context.Context, episodeID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.episode_id, c.user_id, u.username, c.block_index, c.text, c.created_at
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.episode_id=$1
		ORDER BY c.block_index, c.created_at, c.id
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.EpisodeID, &c.UserID, &c.Author,
			&c.BlockIndex, &c.Text, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *PostgresStore) GetComment(ctx context.Context, id int64) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.episode_id, c.user_id, u.username, c.block_index, c.text, c.created_at
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.id=$1
	`, id).Scan(&c.ID, &c.EpisodeID, &c.UserID, &c.Author, &c.BlockIndex, &c.Text, &c.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("lookup comment %d: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- backup ---

// ExportAll reads every table for a backup snapshot.
func (s *PostgresStore) ExportAll(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Users, err = s.ListUsers(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Tracks, err = s.ListTracks(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Episodes, err = s.ListEpisodes(ctx, 0); err != nil {
		return Snapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.episode_id, c.user_id, u.username, c.block_index, c.text, c.created_at
		FROM comments c JOIN users u ON u.id = c.user_id
		ORDER BY c.id
	`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("export comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.EpisodeID, &c.UserID, &c.Author,
			&c.BlockIndex, &c.Text, &c.Timestamp); err != nil {
			return Snapshot{}, fmt.Errorf("scan exported comment: %w", err)
		}
		snap.Comments = append(snap.Comments, c)
	}
	return snap, rows.Err()
}

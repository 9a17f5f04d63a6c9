package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"redbook/api/internal/export"
	"redbook/api/internal/search"
	"redbook/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user": map[string]any{
				"id":       sess.UserID,
				"username": sess.Username,
				"is_admin": sess.IsAdmin,
			},
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/logout" {
		_ = s.service.Logout(r.Context(), bearerToken(r))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
		return
	}

	// Everything below requires a session.
	sess, err := s.service.SessionFromToken(r.Context(), bearerToken(r))
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}

	parts := splitPath(r.URL.Path)
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/dashboard":
		s.handleDashboard(w, r)

	case r.Method == http.MethodGet && r.URL.Path == "/api/search":
		s.handleSearch(w, r)

	case r.Method == http.MethodGet && r.URL.Path == "/api/users":
		s.handleListUsers(w, r)

	case r.Method == http.MethodGet && r.URL.Path == "/api/tracks":
		s.handleListTracks(w, r)

	case r.Method == http.MethodPost && r.URL.Path == "/api/tracks":
		s.handleCreateTrack(w, r, sess)

	case r.Method == http.MethodPost && r.URL.Path == "/create_episode":
		s.handleCreateEpisode(w, r, sess)

	case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "delete_episode":
		s.handleDeleteEpisode(w, r, sess, parts[1])

	case r.Method == http.MethodPost && r.URL.Path == "/api/update_episode_order":
		s.handleUpdateOrder(w, r)

	case r.Method == http.MethodPost && r.URL.Path == "/assign_user":
		s.handleAssignUser(w, r)

	case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "unassign_self":
		s.handleUnassignSelf(w, r, sess, parts[1])

	case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "delete_comment":
		s.handleDeleteComment(w, r, sess, parts[1])

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "episode":
		s.handleGetEpisode(w, r, sess, parts[1])

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "episode" && parts[2] == "update":
		s.handleUpdateEpisode(w, r, sess, parts[1])

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "episode" && parts[2] == "comments":
		s.handleAddComment(w, r, sess, parts[1])

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "episode" && parts[2] == "change_track":
		s.handleChangeTrack(w, r, sess, parts[1])

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "episode" && parts[2] == "change_status":
		s.handleChangeStatus(w, r, sess, parts[1])

	case r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "episode" && parts[2] == "export":
		s.handleExport(w, r, parts[1], parts[3])

	case r.Method == http.MethodPost && len(parts) == 4 &&
		parts[0] == "api" && parts[1] == "episode" && parts[3] == "update_title":
		s.handleUpdateTitle(w, r, sess, parts[2])

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   sess.Token,
		"user": map[string]any{
			"id":       sess.UserID,
			"username": sess.Username,
			"is_admin": sess.IsAdmin,
		},
	})
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	trackID, _ := strconv.ParseInt(r.URL.Query().Get("track"), 10, 64)
	view, err := s.service.Dashboard(r.Context(), trackID)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	trackID, _ := strconv.ParseInt(query.Get("track"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	resp := s.service.Search(r.Context(), search.Query{
		Text:    query.Get("q"),
		TrackID: trackID,
		Limit:   limit,
		Offset:  offset,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.Users(r.Context())
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.Tracks(r.Context())
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (s *HTTPServer) handleCreateTrack(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	track, err := s.service.CreateTrack(r.Context(), sess, strings.TrimSpace(body.Name))
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "track": track})
}

func (s *HTTPServer) handleCreateEpisode(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		Title   string `json:"title"`
		TrackID int64  `json:"track_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	episode, err := s.service.CreateEpisode(r.Context(), sess, strings.TrimSpace(body.Title), body.TrackID)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Episode %q created", episode.Title),
		"episode": episode,
	})
}

func (s *HTTPServer) handleDeleteEpisode(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	if err := s.service.DeleteEpisode(r.Context(), sess, id); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Episode deleted"})
}

func (s *HTTPServer) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderedIDs []json.Number `json:"ordered_ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.OrderedIDs == nil {
		writeError(w, http.StatusBadRequest, "Invalid data")
		return
	}

	orderedIDs := make([]int64, 0, len(body.OrderedIDs))
	for _, raw := range body.OrderedIDs {
		id, err := raw.Int64()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid episode id in order list")
			return
		}
		orderedIDs = append(orderedIDs, id)
	}

	if err := s.service.UpdateOrder(r.Context(), orderedIDs); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order saved"})
}

func (s *HTTPServer) handleAssignUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EpisodeID      int64 `json:"episode_id"`
		UserToAssignID int64 `json:"user_to_assign_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.EpisodeID == 0 || body.UserToAssignID == 0 {
		writeError(w, http.StatusBadRequest, "Episode or user id missing")
		return
	}
	if err := s.service.AssignUser(r.Context(), body.EpisodeID, body.UserToAssignID); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User assigned"})
}

func (s *HTTPServer) handleUnassignSelf(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	if err := s.service.UnassignSelf(r.Context(), sess, id); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Unassigned from episode"})
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid comment id")
		return
	}
	blockIndex, err := s.service.DeleteComment(r.Context(), sess, id)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"message":             "Comment deleted",
		"deleted_comment_id":  id,
		"deleted_block_index": blockIndex,
	})
}

func (s *HTTPServer) handleGetEpisode(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	view, err := s.service.Episode(r.Context(), sess, id)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleUpdateEpisode(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	var body struct {
		Plan     *string `json:"plan"`
		Scenario *string `json:"scenario"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	message, err := s.service.UpdateEpisode(r.Context(), sess, id, body.Plan, body.Scenario)
	if err != nil {
		status, errMessage := mapError(err)
		writeError(w, status, errMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	var body struct {
		BlockIndex *int   `json:"block_index"`
		Text       string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.BlockIndex == nil || strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "Block index or comment text missing or invalid")
		return
	}

	comment, err := s.service.AddComment(r.Context(), sess, id, *body.BlockIndex, strings.TrimSpace(body.Text))
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Comment added",
		"comment": comment,
	})
}

func (s *HTTPServer) handleChangeTrack(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	var body struct {
		NewTrackID int64 `json:"new_track_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.NewTrackID == 0 {
		writeError(w, http.StatusBadRequest, "No track selected")
		return
	}
	if err := s.service.ChangeTrack(r.Context(), sess, id, body.NewTrackID); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Track changed"})
}

func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	var body struct {
		NewStatus string `json:"new_status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.ChangeStatus(r.Context(), sess, id, body.NewStatus); err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Status changed"})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, rawID, rawFormat string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}

	var format export.Format
	switch rawFormat {
	case "pdf":
		format = export.FormatPDF
	case "docx":
		format = export.FormatDOCX
	default:
		writeError(w, http.StatusBadRequest, "Unsupported export format")
		return
	}

	result, err := s.service.Export(r.Context(), id, format)
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleUpdateTitle(w http.ResponseWriter, r *http.Request, sess Session, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid episode id")
		return
	}
	var body struct {
		NewTitle *string `json:"new_title"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.NewTitle == nil {
		writeError(w, http.StatusBadRequest, "Invalid data")
		return
	}

	newTitle, err := s.service.UpdateTitle(r.Context(), sess, id, strings.TrimSpace(*body.NewTitle))
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Title updated",
		"new_title": newTitle,
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func mapError(err error) (status int, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "Not found"
	}
	if errors.Is(err, store.ErrDuplicate) {
		return http.StatusConflict, "Already exists"
	}
	return http.StatusInternalServerError, "Server error"
}

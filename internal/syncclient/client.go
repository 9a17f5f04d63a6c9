// Package syncclient issues the page's create/update/delete requests and
// reconciles responses. Every user intent is a single round trip with no
// optimistic mutation; failures leave the pre-attempt state intact so the
// user retries manually.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"redbook/api/internal/comments"
	"redbook/api/internal/editor"
)

// Kind classifies a failed operation. Network and application failures are
// surfaced identically to the user; the split only affects logged detail.
type Kind int

const (
	KindValidation Kind = iota
	KindNetwork
	KindApplication
)

// Error is a failed sync operation.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.cause }

func validationErr(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func networkErr(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "Network error. Please try again.", cause: err}
}

func applicationErr(message, fallback string) *Error {
	if strings.TrimSpace(message) == "" {
		message = fallback
	}
	return &Error{Kind: KindApplication, Message: message}
}

// ErrTitleUnchanged marks a blank or unchanged title submission: a no-op
// cancel, not a failure.
var ErrTitleUnchanged = validationErr("title unchanged")

// Client talks to the episode API for one episode.
type Client struct {
	base      string
	episodeID int64
	token     string
	http      *http.Client
}

func New(base string, episodeID int64, token string) *Client {
	return &Client{
		base:      strings.TrimRight(base, "/"),
		episodeID: episodeID,
		token:     token,
		http:      http.DefaultClient,
	}
}

// WithHTTPClient overrides the transport, for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

type envelope struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Comment  *comments.Comment `json:"comment"`
	NewTitle string            `json:"new_title"`
}

// SaveField persists the plan or scenario text. The title field has its own
// endpoint and is rejected here.
func (c *Client) SaveField(ctx context.Context, field editor.Field, content string) error {
	if field != editor.FieldPlan && field != editor.FieldScenario {
		return validationErr(fmt.Sprintf("field %q cannot be saved here", field))
	}
	body := map[string]string{string(field): content}
	_, err := c.post(ctx, fmt.Sprintf("/episode/%d/update", c.episodeID), body, "Saving failed")
	return err
}

// SubmitComment creates a comment against an open block. Blank text and
// absent or negative block indexes are rejected locally with no network
// call.
func (c *Client) SubmitComment(ctx context.Context, blockIndex int, text string) (comments.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return comments.Comment{}, validationErr("Comment text cannot be empty.")
	}
	if blockIndex < 0 {
		return comments.Comment{}, validationErr("No paragraph selected.")
	}
	body := map[string]any{"block_index": blockIndex, "text": text}
	resp, err := c.post(ctx, fmt.Sprintf("/episode/%d/comments", c.episodeID), body, "Could not add the comment")
	if err != nil {
		return comments.Comment{}, err
	}
	if resp.Comment == nil {
		return comments.Comment{}, applicationErr("", "Could not add the comment")
	}
	return *resp.Comment, nil
}

// DeleteComment removes a comment by id.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	_, err := c.post(ctx, fmt.Sprintf("/delete_comment/%d", commentID), nil, "Could not delete the comment")
	return err
}

// SaveTitle updates the episode title. A blank or unchanged title is a
// no-op cancel reported as ErrTitleUnchanged, with no network call.
func (c *Client) SaveTitle(ctx context.Context, current, newTitle string) (string, error) {
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" || newTitle == strings.TrimSpace(current) {
		return "", ErrTitleUnchanged
	}
	resp, err := c.post(ctx, fmt.Sprintf("/api/episode/%d/update_title", c.episodeID), map[string]string{"new_title": newTitle}, "Could not update the title")
	if err != nil {
		return "", err
	}
	if resp.NewTitle != "" {
		return resp.NewTitle, nil
	}
	return newTitle, nil
}

// SaveOrder forwards the full episode order after a reorder gesture. The
// gesture itself is never rolled back; a failure is reported for the caller
// to alert on.
func (c *Client) SaveOrder(ctx context.Context, orderedIDs []int64) error {
	_, err := c.post(ctx, "/api/update_episode_order", map[string]any{"ordered_ids": orderedIDs}, "Could not save the order")
	return err
}

func (c *Client) post(ctx context.Context, path string, body any, fallback string) (envelope, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return envelope{}, networkErr(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, reader)
	if err != nil {
		return envelope{}, networkErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("sync: %s failed: %v", path, err)
		return envelope{}, networkErr(err)
	}
	defer resp.Body.Close()

	var payload envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	// Non-2xx is failure regardless of body; a decodable body still supplies
	// the user-facing message.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("sync: %s returned %d: %s", path, resp.StatusCode, payload.Message)
		return envelope{}, applicationErr(payload.Message, fallback)
	}
	if decodeErr != nil {
		log.Printf("sync: %s returned undecodable body: %v", path, decodeErr)
		return envelope{}, networkErr(decodeErr)
	}
	if !payload.Success {
		log.Printf("sync: %s declined: %s", path, payload.Message)
		return envelope{}, applicationErr(payload.Message, fallback)
	}
	return payload, nil
}

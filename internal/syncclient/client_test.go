package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"redbook/api/internal/editor"
)

func newTestServer(t *testing.T, calls *atomic.Int64, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, New(srv.URL, 7, "test-token").WithHTTPClient(srv.Client())
}

func TestSubmitCommentBlankTextMakesNoRequest(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.SubmitComment(context.Background(), 2, "   ")
	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected zero network calls, got %d", calls.Load())
	}
}

func TestSubmitCommentNegativeIndexMakesNoRequest(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.SubmitComment(context.Background(), -1, "text")
	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected zero network calls, got %d", calls.Load())
	}
}

func TestSubmitCommentSuccess(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/episode/7/comments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			BlockIndex int    `json:"block_index"`
			Text       string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.BlockIndex != 2 || body.Text != "looks wrong" {
			t.Errorf("unexpected body: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"comment": map[string]any{
				"id": 41, "block_index": 2, "text": "looks wrong",
				"author": "hakim", "author_id": 3, "timestamp": "2026-09-01 10:00",
			},
		})
	})

	comment, err := client.SubmitComment(context.Background(), 2, "looks wrong")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if comment.ID != 41 || comment.BlockIndex != 2 {
		t.Errorf("unexpected comment: %+v", comment)
	}
}

func TestSubmitCommentApplicationFailureSurfacesServerMessage(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "duplicate"})
	})

	_, err := client.SubmitComment(context.Background(), 2, "again")
	var syncErr *Error
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if syncErr.Kind != KindApplication || syncErr.Message != "duplicate" {
		t.Errorf("expected application error %q, got kind=%d message=%q", "duplicate", syncErr.Kind, syncErr.Message)
	}
}

func TestNon2xxIsFailureRegardlessOfBody(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "not allowed"})
	})

	err := client.SaveField(context.Background(), editor.FieldScenario, "text")
	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Kind != KindApplication {
		t.Fatalf("expected application error, got %v", err)
	}
	if syncErr.Message != "not allowed" {
		t.Errorf("server message should be surfaced, got %q", syncErr.Message)
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := New(srv.URL, 7, "").WithHTTPClient(srv.Client())
	srv.Close()

	err := client.SaveField(context.Background(), editor.FieldPlan, "text")
	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Kind != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestSaveTitleUnchangedIsLocalNoOp(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := client.SaveTitle(context.Background(), "Episode 1", "Episode 1"); !errors.Is(err, ErrTitleUnchanged) {
		t.Fatalf("expected ErrTitleUnchanged, got %v", err)
	}
	if _, err := client.SaveTitle(context.Background(), "Episode 1", "   "); !errors.Is(err, ErrTitleUnchanged) {
		t.Fatalf("expected ErrTitleUnchanged for blank title, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected zero network calls, got %d", calls.Load())
	}
}

func TestSaveTitleSuccessReturnsServerTitle(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/episode/7/update_title" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "new_title": "Episode One"})
	})

	got, err := client.SaveTitle(context.Background(), "Episode 1", "Episode One")
	if err != nil {
		t.Fatalf("save title: %v", err)
	}
	if got != "Episode One" {
		t.Errorf("title = %q", got)
	}
}

func TestSaveOrderPostsFullOrder(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/update_episode_order" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			OrderedIDs []int64 `json:"ordered_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.OrderedIDs) != 3 || body.OrderedIDs[0] != 9 {
			t.Errorf("unexpected order: %v", body.OrderedIDs)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if err := client.SaveOrder(context.Background(), []int64{9, 4, 6}); err != nil {
		t.Fatalf("save order: %v", err)
	}
}

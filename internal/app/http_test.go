package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"concord/api/internal/store"
)

func newTestServer(dataStore *fakeStore) *httptest.Server {
	service, _, _ := newTestService(dataStore)
	return httptest.NewServer(NewHTTPServer(service, "*").Handler())
}

func TestHealthRoute(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestApproveRequiresAdminHeader(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/queue/que_1/approve", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("approve request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin header, got %d", resp.StatusCode)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != CodeUnauthorized {
		t.Fatalf("expected %s, got %s", CodeUnauthorized, body.Code)
	}
}

func TestVoteRouteSurfacesValidationErrors(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/votes", "application/json",
		strings.NewReader(`{"suggestionId":"sug_1","evaluatorId":"user_1","value":7}`))
	if err != nil {
		t.Fatalf("vote request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422 for an out-of-range vote, got %d", resp.StatusCode)
	}
}

func TestRejectRoutePassesNotesAndAdmin(t *testing.T) {
	var gotNotes, gotAdmin string
	dataStore := &fakeStore{
		rejectQueueItemFn: func(_ context.Context, _ string, notes, resolvedBy string) (bool, error) {
			gotNotes, gotAdmin = notes, resolvedBy
			return true, nil
		},
		getQueueItemFn: func(context.Context, string) (store.QueueItem, error) {
			return store.QueueItem{ID: "que_1", Status: "rejected", AdminNotes: "too vague"}, nil
		},
	}
	server := newTestServer(dataStore)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/queue/que_1/reject",
		strings.NewReader(`{"notes":"too vague"}`))
	req.Header.Set("X-Concord-Admin", "root")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("reject request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotNotes != "too vague" || gotAdmin != "root" {
		t.Fatalf("notes/admin did not reach the store: %q %q", gotNotes, gotAdmin)
	}
}

func TestApproveRouteAcceptsEmptyBody(t *testing.T) {
	dataStore := &fakeStore{
		getQueueItemFn: func(context.Context, string) (store.QueueItem, error) {
			return store.QueueItem{ID: "que_1", ParagraphID: "par_1", SuggestionID: "sug_1", Status: "pending"}, nil
		},
		getParagraphFn: func(context.Context, string) (store.Paragraph, error) {
			return testParagraph("manual"), nil
		},
		applyReplacementFn: func(context.Context, store.ReplacementParams) (store.ReplacementResult, error) {
			return store.ReplacementResult{
				ParagraphID: "par_1", SuggestionID: "sug_1", NewVersion: 4, FinalText: "better text",
			}, nil
		},
		getSuggestionFn: func(context.Context, string) (store.Suggestion, error) {
			return unanimousSuggestion(), nil
		},
	}
	server := newTestServer(dataStore)
	defer server.Close()

	// every approve field is optional, so no body at all must work
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/queue/que_1/approve", nil)
	req.Header.Set("X-Concord-Admin", "root")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("approve request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for an empty body, got %d", resp.StatusCode)
	}
}

func TestRejectRouteEmptyBodyFailsOnNotesNotParsing(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/queue/que_1/reject", nil)
	req.Header.Set("X-Concord-Admin", "root")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("reject request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422 for missing notes, got %d", resp.StatusCode)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != CodeValidation {
		t.Fatalf("expected %s, got %s", CodeValidation, body.Code)
	}
}

func TestHistoryRouteUnknownParagraphIs404(t *testing.T) {
	dataStore := &fakeStore{
		getParagraphFn: func(context.Context, string) (store.Paragraph, error) {
			return store.Paragraph{}, store.ErrNotFound
		},
	}
	server := newTestServer(dataStore)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/paragraphs/par_missing/history")
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/repository"
)

func testArtifact() repository.Artifact {
	return repository.Artifact{
		ID:        "art-1",
		MeetingID: "meeting-1",
		Kind:      repository.ArtifactKindTask,
		Title:     "send the contract draft",
		Assignee:  "Dana",
	}
}

func TestTaskPlatformCreate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"item-42","url":"https://tasks.example/item-42"}`))
	}))
	defer srv.Close()

	target := NewTaskPlatformTarget(srv.URL, "secret", time.Second)
	ref, err := target.Create(context.Background(), testArtifact())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ID != "item-42" || ref.URL != "https://tasks.example/item-42" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

func TestTaskPlatformCreate_AuthFailureIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	target := NewTaskPlatformTarget(srv.URL, "wrong", time.Second)
	_, err := target.Create(context.Background(), testArtifact())
	if err == nil {
		t.Fatal("expected an error")
	}
	if fault.ClassOf(err) != fault.ExternalPermanent {
		t.Fatalf("expected a permanent fault, got %s", fault.ClassOf(err))
	}
}

func TestTaskPlatformCreate_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	target := NewTaskPlatformTarget(srv.URL, "secret", time.Second)
	_, err := target.Create(context.Background(), testArtifact())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !fault.IsRetryable(err) {
		t.Fatalf("expected a retryable fault, got %s", fault.ClassOf(err))
	}
}

func TestSummaryWebhook_AcceptsOnlySummaries(t *testing.T) {
	target := NewSummaryWebhookTarget("https://hooks.example/summary", time.Second)
	if target.Accepts(repository.ArtifactKindTask) {
		t.Fatal("expected task artifacts to be rejected")
	}
	if !target.Accepts(repository.ArtifactKindSummary) {
		t.Fatal("expected summary artifacts to be accepted")
	}
}

// Package dispatch implements the external delivery targets: the task
// platform HTTP API for extracted tasks, a summary webhook, and a Discord
// channel notification.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/scribelab/scribed/internal/dispatch"
	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/repository"
)

type TaskPlatformTarget struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewTaskPlatformTarget(baseURL, token string, timeout time.Duration) *TaskPlatformTarget {
	return &TaskPlatformTarget{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *TaskPlatformTarget) Name() string { return "task_platform" }

func (t *TaskPlatformTarget) Accepts(kind repository.ArtifactKind) bool {
	return kind == repository.ArtifactKindTask
}

type createItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	SourceID    string `json:"sourceId"`
}

type createItemResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (t *TaskPlatformTarget) Create(ctx context.Context, artifact repository.Artifact) (dispatch.ExternalRef, error) {
	const op = "task_platform.create"

	body, err := json.Marshal(createItemRequest{
		Title:       artifact.Title,
		Description: artifact.Body,
		Assignee:    artifact.Assignee,
		SourceID:    artifact.ID,
	})
	if err != nil {
		return dispatch.ExternalRef{}, fault.New(fault.ExternalPermanent, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/items", bytes.NewReader(body))
	if err != nil {
		return dispatch.ExternalRef{}, fault.New(fault.ExternalPermanent, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return dispatch.ExternalRef{}, fault.New(fault.ExternalTransient, op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dispatch.ExternalRef{}, fault.FromHTTPStatus(op, resp.StatusCode, string(raw))
	}

	var created createItemResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		return dispatch.ExternalRef{}, fault.Newf(fault.ExternalTransient, op, "unreadable response: %v", err)
	}
	if created.ID == "" {
		return dispatch.ExternalRef{}, fault.Newf(fault.ExternalTransient, op, "response missing item id")
	}
	return dispatch.ExternalRef{ID: created.ID, URL: created.URL}, nil
}

var _ dispatch.Target = (*TaskPlatformTarget)(nil)

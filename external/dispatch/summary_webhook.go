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

type SummaryWebhookTarget struct {
	webhookURL string
	client     *http.Client
}

func NewSummaryWebhookTarget(webhookURL string, timeout time.Duration) *SummaryWebhookTarget {
	return &SummaryWebhookTarget{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

func (t *SummaryWebhookTarget) Name() string { return "summary_webhook" }

func (t *SummaryWebhookTarget) Accepts(kind repository.ArtifactKind) bool {
	return kind == repository.ArtifactKindSummary
}

type summaryPayload struct {
	ArtifactID string    `json:"artifactId"`
	MeetingID  string    `json:"meetingId"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (t *SummaryWebhookTarget) Create(ctx context.Context, artifact repository.Artifact) (dispatch.ExternalRef, error) {
	const op = "summary_webhook.post"

	body, err := json.Marshal(summaryPayload{
		ArtifactID: artifact.ID,
		MeetingID:  artifact.MeetingID,
		Summary:    artifact.Body,
		CreatedAt:  artifact.CreatedAt,
	})
	if err != nil {
		return dispatch.ExternalRef{}, fault.New(fault.ExternalPermanent, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, bytes.NewReader(body))
	if err != nil {
		return dispatch.ExternalRef{}, fault.New(fault.ExternalPermanent, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return dispatch.ExternalRef{}, fault.New(fault.ExternalTransient, op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return dispatch.ExternalRef{}, fault.FromHTTPStatus(op, resp.StatusCode, string(raw))
	}
	// Webhooks have no remote record to point back at; the artifact id doubles
	// as the reference.
	return dispatch.ExternalRef{ID: artifact.ID}, nil
}

var _ dispatch.Target = (*SummaryWebhookTarget)(nil)

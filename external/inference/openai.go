package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/scribelab/scribed/internal/fault"
	internalinference "github.com/scribelab/scribed/internal/inference"
)

const (
	speakerInstruction = `Attribute each transcript line to a speaker. Prefer the known participant names.
Return a strict JSON object: {"speakers":[{"speaker":"...","text":"..."}]}`

	summaryInstruction = `Summarize the new transcript content, extending the prior summary when one is given.
Keep decisions, owners and dates. Return a strict JSON object: {"summary":"..."}`

	tasksInstruction = `Extract concrete action items from the transcript. Only explicit commitments, no speculation.
Return a strict JSON object: {"tasks":[{"title":"...","description":"...","assignee":"...","priority":"..."}]}`

	combinedInstruction = `Process the meeting transcript content. Attribute lines to speakers (prefer the known
participant names), extend the prior summary when one is given, and extract explicit action items.
Return a strict JSON object:
{"summary":"...","tasks":[{"title":"...","description":"...","assignee":"...","priority":"..."}],"speakers":[{"speaker":"...","text":"..."}]}`
)

type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// Client speaks an OpenAI-compatible chat completions endpoint. One call per
// slice; per-slice results are merged preserving order.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) internalinference.Invoker {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{},
	}
}

func (c *Client) Invoke(ctx context.Context, kind internalinference.Kind, slices []string, inv internalinference.Context) (internalinference.Result, error) {
	results := make([]internalinference.Result, 0, len(slices))
	for i, slice := range slices {
		raw, err := c.complete(ctx, buildPrompt(kind, slice, inv))
		if err != nil {
			return internalinference.Result{}, err
		}
		r := internalinference.ParsePayload(kind, raw)
		if r.Degraded {
			slog.Warn("inference slice returned unparseable payload", "kind", kind, "slice", i)
		}
		results = append(results, r)
	}
	return internalinference.Merge(kind, results), nil
}

func buildPrompt(kind internalinference.Kind, slice string, inv internalinference.Context) string {
	var b strings.Builder
	switch kind {
	case internalinference.KindSpeakerID:
		b.WriteString(speakerInstruction)
	case internalinference.KindSummary:
		b.WriteString(summaryInstruction)
	case internalinference.KindTasks:
		b.WriteString(tasksInstruction)
	default:
		b.WriteString(combinedInstruction)
	}
	if len(inv.ParticipantNames) > 0 {
		b.WriteString("\n\nKnown participants: ")
		b.WriteString(strings.Join(inv.ParticipantNames, ", "))
	}
	if inv.PriorSummary != "" {
		b.WriteString("\n\nPrior summary:\n")
		b.WriteString(inv.PriorSummary)
	}
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(slice)
	return b.String()
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fault.New(fault.ExternalTransient, "inference", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.New(fault.ExternalTransient, "inference", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fault.FromHTTPStatus("inference", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fault.New(fault.ExternalTransient, "inference", fmt.Errorf("decode response envelope: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", fault.Newf(fault.ExternalTransient, "inference", "empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

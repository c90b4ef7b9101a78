package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

// APIError is a non-2xx answer from the tutor server. Its message is the
// server's error text as sent.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// Client calls the tutor server's chat endpoint.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Chat sends one turn and returns the server's answer.
func (c *Client) Chat(ctx context.Context, req model.TutorRequest) (model.TurnResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.TurnResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return model.TurnResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return model.TurnResponse{}, fmt.Errorf("post chat: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.TurnResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e model.ErrorResponse
		if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
			e.Error = fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
		}
		return model.TurnResponse{}, &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	var out model.TurnResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return model.TurnResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

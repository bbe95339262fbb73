package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/model"
)

// APIClient calls the relay's REST endpoints with a bearer credential.
// It covers identity bootstrap, the bulk inbox load, and the synchronous
// send fallback.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient creates a client for the relay at baseURL. The credential is
// attached to every request; acquiring and refreshing it is the caller's
// problem.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Me resolves the session identity via GET /auth/me/.
func (c *APIClient) Me(ctx context.Context) (string, error) {
	var payload struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me/", nil, &payload); err != nil {
		return "", err
	}
	if payload.Username == "" {
		return "", fmt.Errorf("GET /auth/me/: empty username")
	}
	return payload.Username, nil
}

// Inbox fetches the full message history via GET /inbox/.
func (c *APIClient) Inbox(ctx context.Context) ([]model.Message, error) {
	var records []model.InboxRecord
	if err := c.do(ctx, http.MethodGet, "/inbox/", nil, &records); err != nil {
		return nil, err
	}
	messages := make([]model.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, rec.Message())
	}
	return messages, nil
}

// SendMessage delivers a draft via POST /inbox/send_message/ and returns
// the confirmed record.
func (c *APIClient) SendMessage(ctx context.Context, draft model.Draft) (model.Message, error) {
	var record model.InboxRecord
	if err := c.do(ctx, http.MethodPost, "/inbox/send_message/", draft, &record); err != nil {
		return model.Message{}, err
	}
	return record.Message(), nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

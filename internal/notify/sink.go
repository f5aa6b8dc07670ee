package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pocketpal/approvalflow/internal/models"
)

// SinkConfig holds notification sink client configuration
type SinkConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// SinkClient posts notifications to the external notification sink
type SinkClient struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSinkClient creates a new sink client
func NewSinkClient(cfg SinkConfig, logger *zap.Logger) *SinkClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SinkClient{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sinkPayload struct {
	UserID           string `json:"user_id"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	RelatedRequestID string `json:"related_request_id,omitempty"`
}

// Deliver posts one notification to the sink
func (c *SinkClient) Deliver(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(sinkPayload{
		UserID:           n.UserID,
		Type:             string(n.Kind),
		Title:            n.Title,
		Message:          n.Message,
		RelatedRequestID: n.RelatedRequestID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification sink unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notification sink returned status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds funding provider client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the HTTP adapter for the external funding provider. It issues
// a single funding call per invocation; idempotency across calls is the
// approval engine's responsibility.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new funding provider client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type fundRequest struct {
	AccountRef string `json:"account_ref"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

type fundResponse struct {
	TransactionRef string `json:"transaction_ref"`
	Error          string `json:"error,omitempty"`
}

// Fund moves amount into the wallet behind accountRef and returns the
// provider's transaction reference.
func (c *Client) Fund(ctx context.Context, accountRef string, amount decimal.Decimal, memo string) (string, error) {
	body, err := json.Marshal(fundRequest{
		AccountRef: accountRef,
		Amount:     amount.StringFixed(2),
		Memo:       memo,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode funding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/fund", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build funding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("funding provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("failed to read funding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Funding provider returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("account_ref", accountRef))
		return "", fmt.Errorf("funding provider returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed fundResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode funding response: %w", err)
	}
	if parsed.TransactionRef == "" {
		return "", fmt.Errorf("funding provider returned no transaction reference")
	}

	c.logger.Info("Funding call succeeded",
		zap.String("account_ref", accountRef),
		zap.String("transaction_ref", parsed.TransactionRef))
	return parsed.TransactionRef, nil
}

package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// PayloadsPath is where the collector accepts payloads
const PayloadsPath = "/api/v1/payloads"

// ErrUnexpectedStatus is returned when the collector answers with a non-2xx status
var ErrUnexpectedStatus = errors.New("unexpected status from collector")

// Connector publishes payloads to the collector over HTTP
type Connector struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      log.Logger
}

// NewConnector creates a Connector for the collector at serverURL
func NewConnector(serverURL, apiKey string, timeout time.Duration, logger log.Logger) *Connector {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Connector{
		endpoint: strings.TrimRight(serverURL, "/") + PayloadsPath,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		log:      logger,
	}
}

func (c *Connector) Name() string { return "http" }

// Dispatch posts the payload to the collector
func (c *Connector) Dispatch(ctx context.Context, payload *types.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Debug("Published payload", "endpoint", c.endpoint, "status", resp.StatusCode)
	return nil
}

package gateway

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
)

// HTTPConfig configures the HTTP gateway sender.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPSender posts messages to a WhatsApp gateway REST endpoint.
type HTTPSender struct {
	baseURL string
	token   string
	client  *http.Client
}

type sendRequest struct {
	CompanyID string `json:"company_id"`
	Message
}

type sendResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// NewHTTPSender validates the configuration and builds an HTTPSender.
func NewHTTPSender(cfg HTTPConfig, client *http.Client) (*HTTPSender, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base url is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSender{baseURL: base, token: cfg.Token, client: client}, nil
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, companyID string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(sendRequest{CompanyID: companyID, Message: msg})
	if err != nil {
		return "", fmt.Errorf("gateway: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var decoded sendResponse
	_ = json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := decoded.Error
		if reason == "" {
			reason = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("gateway: send failed with status %d: %s", resp.StatusCode, reason)
	}
	return decoded.ID, nil
}

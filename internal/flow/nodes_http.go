package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charlesng35/engageflow/internal/vault"
)

// HandleSuccess is the api node's success handle.
const HandleSuccess = "success"

// DataSecretHeaders is the node data key holding headers sealed in the vault.
const DataSecretHeaders = "secretHeaders"

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
)

// HTTPRequestConfig is shared by webhook and api nodes.
type HTTPRequestConfig struct {
	URL           string            `mapstructure:"url"`
	Method        string            `mapstructure:"method"`
	Headers       map[string]string `mapstructure:"headers"`
	SecretHeaders map[string]string `mapstructure:"secretHeaders"`
	Body          string            `mapstructure:"body"`
}

func (c *HTTPRequestConfig) validate(defaultMethod string) error {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.Contains(raw, "{{") {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("url must be an absolute http(s) url")
		}
	}
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	switch c.Method {
	case "":
		c.Method = defaultMethod
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("unsupported method %q", c.Method)
	}
	return nil
}

// renderBody interpolates the body template, escaping values as JSON unless
// a non-JSON Content-Type header is configured.
func (c *HTTPRequestConfig) renderBody(run *Run) string {
	for key, value := range c.Headers {
		if strings.EqualFold(key, "Content-Type") && !strings.Contains(strings.ToLower(value), "json") {
			return run.Render(c.Body)
		}
	}
	return run.RenderJSON(c.Body)
}

type httpResult struct {
	status int
	body   []byte
}

func (c *HTTPRequestConfig) do(ctx context.Context, run *Run, body string, query map[string]string) (*httpResult, error) {
	svc := run.Services()
	if svc == nil || svc.HTTP == nil {
		return nil, fmt.Errorf("no http client configured")
	}
	timeout := svc.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := url.Parse(run.Render(c.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if len(query) > 0 {
		values := target.Query()
		for key, value := range query {
			values.Set(key, run.Render(value))
		}
		target.RawQuery = values.Encode()
	}

	var reader io.Reader
	if body != "" && c.Method != http.MethodGet {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, c.Method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, value := range c.Headers {
		req.Header.Set(key, run.Render(value))
	}
	for key, value := range c.SecretHeaders {
		if value == vault.Redacted {
			return nil, fmt.Errorf("secret header %q is not available", key)
		}
		req.Header.Set(key, value)
	}
	if reader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := svc.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.Method, target.Host, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	result := &httpResult{status: resp.StatusCode, body: payload}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("%s %s: unexpected status %d", c.Method, target.Host, resp.StatusCode)
	}
	return result, nil
}

func decodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err == nil {
		return parsed
	}
	return string(trimmed)
}

// WebhookConfig configures a webhook node.
type WebhookConfig struct {
	HTTPRequestConfig `mapstructure:",squash"`
	Variable          string `mapstructure:"variable"`
}

func (c *WebhookConfig) validate() error {
	return c.HTTPRequestConfig.validate(http.MethodPost)
}

type webhookHandler struct{}

func (webhookHandler) Type() string { return TypeWebhook }

func (webhookHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[WebhookConfig](data)
}

func (h webhookHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[WebhookConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}

	body := cfg.renderBody(run)
	if strings.TrimSpace(cfg.Body) == "" {
		body, err = defaultWebhookPayload(run, node)
		if err != nil {
			return Outcome{}, err
		}
	}

	result, err := cfg.do(ctx, run, body, nil)
	if err != nil {
		return Outcome{}, err
	}
	if cfg.Variable != "" {
		run.Vars.Set(cfg.Variable, decodeBody(result.body))
	}
	return Outcome{Detail: fmt.Sprintf("status %d", result.status)}, nil
}

func defaultWebhookPayload(run *Run, node *Node) (string, error) {
	payload := map[string]any{
		"event":        "flow.webhook",
		"node_id":      node.ID,
		"flow_id":      run.Flow.ID,
		"execution_id": run.Execution.ID,
		"contact": map[string]any{
			"id":     run.Contact.ID,
			"name":   run.Contact.Name,
			"number": run.Contact.Number,
			"email":  run.Contact.Email,
		},
		"variables": run.Vars,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ResponseMapping copies a dotted path of the JSON response into a variable.
type ResponseMapping struct {
	Path     string `mapstructure:"path"`
	Variable string `mapstructure:"variable"`
}

// APIConfig configures an api node.
type APIConfig struct {
	HTTPRequestConfig `mapstructure:",squash"`
	Query             map[string]string `mapstructure:"query"`
	Mappings          []ResponseMapping `mapstructure:"mappings"`
	ResponseVariable  string            `mapstructure:"responseVariable"`
	StatusVariable    string            `mapstructure:"statusVariable"`
}

func (c *APIConfig) validate() error {
	if err := c.HTTPRequestConfig.validate(http.MethodGet); err != nil {
		return err
	}
	for i, m := range c.Mappings {
		if strings.TrimSpace(m.Path) == "" || strings.TrimSpace(m.Variable) == "" {
			return fmt.Errorf("mapping %d: path and variable are required", i+1)
		}
	}
	return nil
}

type apiHandler struct{}

func (apiHandler) Type() string { return TypeAPI }

func (apiHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[APIConfig](data)
}

func (h apiHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[APIConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}

	result, err := cfg.do(ctx, run, cfg.renderBody(run), cfg.Query)
	if cfg.StatusVariable != "" && result != nil {
		run.Vars.Set(cfg.StatusVariable, float64(result.status))
	}
	if err != nil {
		return Outcome{}, err
	}

	parsed := decodeBody(result.body)
	if cfg.ResponseVariable != "" {
		run.Vars.Set(cfg.ResponseVariable, parsed)
	}
	mapped := 0
	for _, m := range cfg.Mappings {
		if value, ok := lookupPath(parsed, m.Path); ok {
			run.Vars.Set(m.Variable, value)
			mapped++
		}
	}
	return Outcome{Handle: HandleSuccess, Detail: fmt.Sprintf("status %d, mapped %d/%d", result.status, mapped, len(cfg.Mappings))}, nil
}

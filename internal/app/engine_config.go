package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/gateway"
)

// Supported gateway drivers.
const (
	GatewayDriverHTTP = "http"
	GatewayDriverLog  = "log"
)

// InactivityDefaults converts the engine fallback into flow settings.
func (c EngineConfig) InactivityDefaults() flow.InactivitySettings {
	return flow.InactivitySettings{
		Timeout:        int(c.Inactivity.Timeout / time.Second),
		MaxWarnings:    c.Inactivity.MaxWarnings,
		WarningMessage: strings.TrimSpace(c.Inactivity.WarningMessage),
		EndMessage:     strings.TrimSpace(c.Inactivity.EndMessage),
	}
}

// EngineOptions converts EngineConfig into flow engine options.
func (c EngineConfig) EngineOptions() []flow.Option {
	return []flow.Option{
		flow.WithMaxSteps(c.MaxSteps),
		flow.WithHTTPClient(nil, c.HTTPTimeout),
		flow.WithInactivityDefaults(c.InactivityDefaults()),
	}
}

// NewSender builds the outbound gateway sender, throttled per company when a
// rate is configured.
func (c GatewayConfig) NewSender() (gateway.Sender, error) {
	var sender gateway.Sender
	switch driver := strings.ToLower(strings.TrimSpace(c.Driver)); driver {
	case "", GatewayDriverLog:
		sender = gateway.NewLogSender()
	case GatewayDriverHTTP:
		httpSender, err := gateway.NewHTTPSender(gateway.HTTPConfig{
			BaseURL: strings.TrimSpace(c.BaseURL),
			Token:   c.Token,
			Timeout: c.Timeout,
		}, nil)
		if err != nil {
			return nil, err
		}
		sender = httpSender
	default:
		return nil, fmt.Errorf("config: unsupported gateway driver %q", c.Driver)
	}

	if c.RatePerSecond > 0 {
		sender = gateway.NewThrottledSender(sender, c.RatePerSecond, c.Burst)
	}
	return sender, nil
}

package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/charlesng35/engageflow/internal/gateway"
)

type startHandler struct{}

func (startHandler) Type() string { return TypeStart }

func (startHandler) Decode(map[string]any) (any, error) { return &struct{}{}, nil }

func (startHandler) Execute(context.Context, *Run, *Node) (Outcome, error) {
	return Outcome{}, nil
}

// MessageConfig configures a message node.
type MessageConfig struct {
	Text string `mapstructure:"text"`
}

func (c *MessageConfig) validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

type messageHandler struct{}

func (messageHandler) Type() string { return TypeMessage }

func (messageHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[MessageConfig](data)
}

func (h messageHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[MessageConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if err := run.SendText(ctx, cfg.Text); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}

// MediaConfig configures a media node.
type MediaConfig struct {
	URL       string `mapstructure:"url"`
	MediaType string `mapstructure:"mediaType"`
	Caption   string `mapstructure:"caption"`
	FileName  string `mapstructure:"fileName"`
}

func (c *MediaConfig) validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("url is required")
	}
	switch c.MediaType {
	case "":
		c.MediaType = gateway.MediaDocument
	case gateway.MediaImage, gateway.MediaAudio, gateway.MediaVideo, gateway.MediaDocument:
	default:
		return fmt.Errorf("unsupported media type %q", c.MediaType)
	}
	return nil
}

type mediaHandler struct{}

func (mediaHandler) Type() string { return TypeMedia }

func (mediaHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[MediaConfig](data)
}

func (h mediaHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[MediaConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if err := run.SendMedia(ctx, cfg.URL, cfg.MediaType, cfg.Caption, cfg.FileName); err != nil {
		return Outcome{}, err
	}
	return Outcome{Detail: cfg.MediaType}, nil
}

// EndConfig configures an end node.
type EndConfig struct {
	Message string `mapstructure:"message"`
}

type endHandler struct{}

func (endHandler) Type() string { return TypeEnd }

func (endHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[EndConfig](data)
}

func (h endHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[EndConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if err := run.SendText(ctx, cfg.Message); err != nil {
		return Outcome{}, err
	}
	return Outcome{End: EndCompleted}, nil
}

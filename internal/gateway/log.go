package gateway

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/engageflow/pkg/logger"
)

// LogSender logs messages instead of delivering them. Used when no gateway is configured.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender constructs a LogSender writing to the gateway module logger.
func NewLogSender() *LogSender {
	return &LogSender{log: logger.WithModule("gateway")}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, companyID string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.log.Info("outbound message",
		zap.String("company_id", companyID),
		zap.String("to", msg.To),
		zap.String("kind", msg.Kind()),
		zap.String("message_id", id),
	)
	return id, nil
}

// WriterSender prints messages to a writer, one per line. flowctl simulate uses it.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

// NewWriterSender constructs a WriterSender.
func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

// Send implements Sender.
func (s *WriterSender) Send(_ context.Context, _ string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++

	var err error
	switch {
	case msg.MediaURL != "":
		_, err = fmt.Fprintf(s.w, "bot> [%s] %s %s\n", msg.MediaType, msg.MediaURL, msg.Caption)
	default:
		_, err = fmt.Fprintf(s.w, "bot> %s\n", msg.Text)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("local-%d", s.n), nil
}

package gateway

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ThrottledSender limits the outbound rate per company before delegating.
type ThrottledSender struct {
	next  Sender
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottledSender wraps next with a per-company token bucket. A non-positive
// perSecond disables throttling and returns next unchanged.
func NewThrottledSender(next Sender, perSecond float64, burst int) Sender {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledSender{
		next:     next,
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Send waits for the company's limiter before sending.
func (s *ThrottledSender) Send(ctx context.Context, companyID string, msg Message) (string, error) {
	if err := s.limiter(companyID).Wait(ctx); err != nil {
		return "", fmt.Errorf("gateway: rate limit wait: %w", err)
	}
	return s.next.Send(ctx, companyID, msg)
}

func (s *ThrottledSender) limiter(companyID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[companyID]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[companyID] = l
	}
	return l
}

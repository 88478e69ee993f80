package email

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen fails sends fast while the relay is known to be down. The
// pipeline treats it as transient, so the job backs off instead of hammering
// a dead provider.
var ErrCircuitOpen = errors.New("email circuit breaker open")

type ProtectedSenderConfig struct {
	Timeout          time.Duration // hard timeout per send
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// ProtectedSender wraps a Sender with a timeout and a circuit breaker.
type ProtectedSender struct {
	inner Sender
	cfg   ProtectedSenderConfig
	mu    sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedSender(inner Sender, cfg ProtectedSenderConfig) *ProtectedSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedSender{
		inner: inner,
		cfg:   cfg,
		state: "closed",
	}
}

func (s *ProtectedSender) Send(ctx context.Context, msg Message) error {
	// fail-fast gate
	if !s.allowRequest() {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err := s.inner.Send(sendCtx, msg)

	s.afterRequest(err)

	return err
}

func (s *ProtectedSender) allowRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case "closed":
		return true
	case "open":
		// cooldown has passed? move to half open
		if time.Since(s.openedAt) >= s.cfg.Cooldown {
			s.state = "half_open"
			s.halfOpenInFlight = 0
			s.halfOpenInFlight++
			return true
		}
		return false
	case "half_open":
		if s.halfOpenInFlight >= s.cfg.HalfOpenMaxCalls {
			return false
		}
		s.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (s *ProtectedSender) afterRequest(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == "half_open" && s.halfOpenInFlight > 0 {
		s.halfOpenInFlight--
	}

	if err == nil {
		s.consecutiveFailures = 0
		s.state = "closed"
		return
	}

	s.consecutiveFailures++

	// a failed trial call reopens immediately
	if s.state == "half_open" {
		s.state = "open"
		s.openedAt = time.Now()
		return
	}

	if s.consecutiveFailures >= s.cfg.FailureThreshold {
		s.state = "open"
		s.openedAt = time.Now()
	}
}

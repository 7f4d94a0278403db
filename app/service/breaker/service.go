package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pawdesk/app/config"
	"pawdesk/app/service/tools"

	"github.com/samber/do"
	"github.com/samber/oops"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// breaker tracks failures of one (tenant, tool) pair. Access is guarded by
// the registry mutex.
type breaker struct {
	state       State
	failures    int
	lastFailure time.Time
	lastTouched time.Time
	probing     bool
}

// Service is the circuit breaker registry: one breaker per (tenant, tool),
// created lazily, swept when idle. A missing breaker always means healthy.
type Service struct {
	mu       sync.RWMutex
	breakers map[key]*breaker

	failureThreshold int
	recoveryTimeout  time.Duration
	retention        time.Duration
	sweepInterval    time.Duration

	now func() time.Time
}

type key struct {
	tenantID string
	toolName string
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Service{
		breakers:         make(map[key]*breaker),
		failureThreshold: cfg.Orchestrator.BreakerFailureThreshold,
		recoveryTimeout:  cfg.Orchestrator.BreakerRecoveryTimeout,
		retention:        cfg.Orchestrator.SweepRetention,
		sweepInterval:    cfg.Orchestrator.SweepInterval,
		now:              time.Now,
	}, nil
}

// NewWithOptions constructs a registry without the DI container. Tests use it.
func NewWithOptions(threshold int, recovery, retention time.Duration) *Service {
	return &Service{
		breakers:         make(map[key]*breaker),
		failureThreshold: threshold,
		recoveryTimeout:  recovery,
		retention:        retention,
		sweepInterval:    time.Minute,
		now:              time.Now,
	}
}

// Allow reports whether a call to (tenantID, toolName) may proceed. An open
// breaker yields a circuit_open error; after the recovery timeout a single
// probe call is let through in HALF_OPEN.
func (s *Service) Allow(tenantID, toolName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[key{tenantID, toolName}]
	if !ok {
		return nil
	}

	now := s.now()
	b.lastTouched = now

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if now.Sub(b.lastFailure) < s.recoveryTimeout {
			return s.openErr(tenantID, toolName)
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil

	case StateHalfOpen:
		if b.probing {
			return s.openErr(tenantID, toolName)
		}
		b.probing = true
		return nil
	}

	return nil
}

func (s *Service) openErr(tenantID, toolName string) error {
	return oops.
		Code(tools.CodeCircuitOpen).
		With("tenant_id", tenantID).
		With("tool", toolName).
		Errorf("tool %s is temporarily unavailable", toolName)
}

// ReportSuccess records a successful call, closing a half-open breaker.
func (s *Service) ReportSuccess(tenantID, toolName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[key{tenantID, toolName}]
	if !ok {
		return
	}

	b.lastTouched = s.now()
	b.probing = false

	if b.state == StateHalfOpen {
		slog.Info("Circuit breaker recovered",
			"tenant_id", tenantID,
			"tool", toolName,
		)
	}

	b.state = StateClosed
	b.failures = 0
	b.lastFailure = time.Time{}
}

// ReportFailure records a failed call, opening the breaker once the
// threshold is reached. The breaker is created on first failure.
func (s *Service) ReportFailure(tenantID, toolName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{tenantID, toolName}
	b, ok := s.breakers[k]
	if !ok {
		b = &breaker{state: StateClosed}
		s.breakers[k] = b
	}

	now := s.now()
	b.failures++
	b.lastFailure = now
	b.lastTouched = now

	switch {
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.probing = false
		slog.Warn("Circuit breaker probe failed, reopening",
			"tenant_id", tenantID,
			"tool", toolName,
		)
	case b.state == StateClosed && b.failures >= s.failureThreshold:
		b.state = StateOpen
		slog.Warn("Circuit breaker opened",
			"tenant_id", tenantID,
			"tool", toolName,
			"failures", b.failures,
			"telegram", true,
		)
	}
}

// StateOf returns the breaker state, or CLOSED when no breaker exists.
func (s *Service) StateOf(tenantID, toolName string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.breakers[key{tenantID, toolName}]; ok {
		return b.state
	}
	return StateClosed
}

// Sweep reclaims breakers that are closed and healthy, or open but untouched
// longer than the retention window. Returns how many were removed.
func (s *Service) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, b := range s.breakers {
		healthy := b.state == StateClosed && b.failures == 0
		stale := now.Sub(b.lastTouched) > s.retention
		if healthy || stale {
			delete(s.breakers, k)
			removed++
		}
	}

	return removed
}

// RunSweepLoop periodically reclaims idle breakers until ctx is done.
func (s *Service) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				slog.Debug("Swept idle circuit breakers", "removed", removed)
			}
		}
	}
}

func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.breakers)
}

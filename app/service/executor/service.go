package executor

import (
	"context"
	"log/slog"
	"time"

	"pawdesk/app/client/llm"
	"pawdesk/app/config"
	"pawdesk/app/service/breaker"
	"pawdesk/app/service/convcache"
	"pawdesk/app/service/metrics"
	"pawdesk/app/service/tools"

	"github.com/samber/do"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

// CallResult is the outcome of one tool call, matched back to its
// originating request by CallID.
type CallResult struct {
	CallID   string
	ToolName string
	Injected bool
	Result   *tools.Result
	Err      error
	Cached   bool
	Duration time.Duration
}

func (r CallResult) Success() bool {
	return r.Err == nil
}

// Service runs execution waves. Every call passes through validation, cache
// lookup, the circuit breaker gate, a per-tool timeout and bounded retry, in
// that order. Calls within a wave run concurrently; waves run in sequence.
type Service struct {
	registry  *tools.Registry
	validator *tools.Validator
	breakers  *breaker.Service
	cache     *convcache.Service
	sink      metrics.Sink

	maxRetries int
	backoff    time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Service{
		registry:   do.MustInvoke[*tools.Registry](di),
		validator:  tools.NewValidator(),
		breakers:   do.MustInvoke[*breaker.Service](di),
		cache:      do.MustInvoke[*convcache.Service](di),
		sink:       do.MustInvoke[metrics.Sink](di),
		maxRetries: cfg.Orchestrator.MaxRetries,
		backoff:    cfg.Orchestrator.RetryBackoff,
	}, nil
}

// NewWithDeps constructs an executor without the DI container. Tests use it.
func NewWithDeps(registry *tools.Registry, breakers *breaker.Service, cache *convcache.Service, sink metrics.Sink, maxRetries int, backoff time.Duration) *Service {
	return &Service{
		registry:   registry,
		validator:  tools.NewValidator(),
		breakers:   breakers,
		cache:      cache,
		sink:       sink,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// ExecuteWaves runs the waves in order and returns one result per call,
// in the order the calls were given.
func (s *Service) ExecuteWaves(ctx context.Context, call tools.CallContext, waves [][]llm.ToolCall) []CallResult {
	var results []CallResult

	for _, wave := range waves {
		waveResults := make([]CallResult, len(wave))

		var group errgroup.Group
		for i, tc := range wave {
			group.Go(func() error {
				waveResults[i] = s.executeOne(ctx, call, tc)
				return nil
			})
		}
		_ = group.Wait()

		results = append(results, waveResults...)
	}

	return results
}

func (s *Service) executeOne(ctx context.Context, call tools.CallContext, tc llm.ToolCall) CallResult {
	start := time.Now()

	result := CallResult{
		CallID:   tc.ID,
		ToolName: tc.Name,
		Injected: tc.Injected,
	}

	payload, cached, err := s.runPipeline(ctx, call, tc)
	result.Result = payload
	result.Cached = cached
	result.Err = err
	result.Duration = time.Since(start)

	errorType := ""
	if err != nil {
		errorType = tools.CodeOf(err)
		if errorType == "" {
			errorType = "execution"
		}
		slog.Warn("Tool call failed",
			"tenant_id", call.TenantID,
			"conversation_id", call.ConversationID,
			"tool", tc.Name,
			"error_type", errorType,
			"error", err,
		)
	}

	s.sink.RecordToolExecution(metrics.ToolExecution{
		ToolName:       tc.Name,
		TenantID:       call.TenantID,
		ConversationID: call.ConversationID,
		Success:        err == nil,
		Duration:       result.Duration,
		ErrorType:      errorType,
	})

	return result
}

func (s *Service) runPipeline(ctx context.Context, call tools.CallContext, tc llm.ToolCall) (*tools.Result, bool, error) {
	spec, ok := s.registry.Get(tc.Name)
	if !ok {
		return nil, false, oops.
			Code(tools.CodeValidation).
			With("tool", tc.Name).
			Errorf("unknown tool %s", tc.Name)
	}

	if err := s.validator.Check(spec, tc.Arguments); err != nil {
		return nil, false, err
	}

	cacheKey := ""
	if spec.Cacheable {
		cacheKey = convcache.Key(spec.Name, tc.Arguments, spec.CacheKeyFields)
		if value, hit := s.cache.Get(call.TenantID, call.ConversationID, cacheKey); hit {
			slog.Debug("Tool cache hit",
				"tenant_id", call.TenantID,
				"conversation_id", call.ConversationID,
				"tool", tc.Name,
			)
			return value, true, nil
		}
	}

	if err := s.breakers.Allow(call.TenantID, tc.Name); err != nil {
		return nil, false, err
	}

	value, err := s.invokeWithRetry(ctx, call, spec, tc)
	if err != nil {
		return nil, false, err
	}

	if spec.Cacheable {
		s.cache.Set(call.TenantID, call.ConversationID, cacheKey, value, spec.TTL)
	} else {
		// A mutating tool succeeded; cached reads may now be stale.
		s.cache.Clear(call.TenantID, call.ConversationID)
	}

	return value, false, nil
}

func (s *Service) invokeWithRetry(ctx context.Context, call tools.CallContext, spec tools.Spec, tc llm.ToolCall) (*tools.Result, error) {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, oops.Code(tools.CodeTimeout).Wrapf(ctx.Err(), "turn cancelled during retry")
			case <-time.After(delay):
			}

			// The previous failure may have opened the breaker; stop
			// retrying instead of slipping extra calls past it.
			if allowErr := s.breakers.Allow(call.TenantID, spec.Name); allowErr != nil {
				return nil, lastErr
			}
		}

		value, err := s.invokeOnce(ctx, call, spec, tc)
		if err == nil {
			s.breakers.ReportSuccess(call.TenantID, spec.Name)
			return value, nil
		}

		s.breakers.ReportFailure(call.TenantID, spec.Name)
		lastErr = err

		if !tools.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// invokeOnce bounds one handler invocation by the tool's timeout tier. A
// hung handler is abandoned at the deadline; it keeps its goroutine until it
// notices the cancelled context.
func (s *Service) invokeOnce(ctx context.Context, call tools.CallContext, spec tools.Spec, tc llm.ToolCall) (*tools.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, spec.EffectiveTimeout())
	defer cancel()

	type outcome struct {
		value *tools.Result
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		value, err := spec.Handler.Invoke(ctx, tc.Arguments, call)
		done <- outcome{value, err}
	}()

	select {
	case <-ctx.Done():
		return nil, oops.
			Code(tools.CodeTimeout).
			With("tool", spec.Name).
			With("timeout", spec.EffectiveTimeout().String()).
			Errorf("tool %s timed out", spec.Name)
	case out := <-done:
		return out.value, out.err
	}
}

// Package scraper runs upstream rate sources through a uniform
// fetch, parse, validate and transform lifecycle guarded by retries,
// a per-source circuit breaker and a shared health monitor.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sethvargo/go-retry"
)

// Source supplies the steps of one scrape attempt.
//
// Fetch runs under the per-attempt deadline. Parse turns the raw payload
// into a structural form and Validate checks it semantically; a nil *Error
// means the values are usable. Transform cannot fail.
type Source[R, P, T any] interface {
	Fetch(ctx context.Context) (R, error)
	Parse(raw R) (P, error)
	Validate(parsed P) *Error
	Transform(parsed P) T
}

// Config controls retries and timeouts for one Scraper.
type Config struct {
	Name          string
	Timeout       time.Duration
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent uint64
	Breaker       BreakerConfig
}

// Result is the outcome of one Scrape call. It is returned, never thrown.
type Result[T any] struct {
	Success       bool
	Data          T
	Err           *Error
	ExecutionTime time.Duration
	Attempts      int
	CircuitState  State
}

// ErrorMessage returns the failure message, or "" on success.
func (r Result[T]) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Option customises a Scraper.
type Option func(*options)

type options struct {
	breakerOpts []BreakerOption
}

// WithBreakerOptions forwards options to the scraper's circuit breaker.
func WithBreakerOptions(opts ...BreakerOption) Option {
	return func(o *options) {
		o.breakerOpts = append(o.breakerOpts, opts...)
	}
}

// Scraper executes a Source with retry, timeout and circuit breaking.
type Scraper[T any] struct {
	cfg     Config
	breaker *CircuitBreaker
	monitor *HealthMonitor
	log     *log.Helper
	attempt func(ctx context.Context) (T, error)
}

// New builds a Scraper for src and registers its breaker with monitor.
// monitor may be nil.
func New[R, P, T any](cfg Config, src Source[R, P, T], monitor *HealthMonitor, logger log.Logger, opts ...Option) *Scraper[T] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.Name
	}

	breaker := NewCircuitBreaker(cfg.Breaker, o.breakerOpts...)
	if monitor != nil {
		monitor.RegisterScraper(cfg.Name, breaker)
	}

	return &Scraper[T]{
		cfg:     cfg,
		breaker: breaker,
		monitor: monitor,
		log:     log.NewHelper(log.With(logger, "module", "scraper", "scraper", cfg.Name)),
		attempt: func(ctx context.Context) (T, error) {
			var zero T
			raw, err := src.Fetch(ctx)
			if err != nil {
				return zero, err
			}
			parsed, err := src.Parse(raw)
			if err != nil {
				var se *Error
				if errors.As(err, &se) {
					return zero, se
				}
				return zero, Wrap(KindParse, err, "failed to parse payload")
			}
			if verr := src.Validate(parsed); verr != nil {
				return zero, verr
			}
			return src.Transform(parsed), nil
		},
	}
}

// Name returns the scraper name.
func (s *Scraper[T]) Name() string {
	return s.cfg.Name
}

// Breaker exposes the scraper's circuit breaker.
func (s *Scraper[T]) Breaker() *CircuitBreaker {
	return s.breaker
}

// Scrape runs up to MaxRetries+1 attempts. It never panics.
func (s *Scraper[T]) Scrape(ctx context.Context) Result[T] {
	start := time.Now()

	if !s.breaker.CanAttempt() {
		err := NewError(KindCircuitOpen, fmt.Sprintf("Circuit breaker is OPEN for %s", s.cfg.Name))
		s.log.Debugw("msg", "scrape rejected by circuit breaker")
		return Result[T]{
			Err:           err,
			ExecutionTime: time.Since(start),
			CircuitState:  StateOpen,
		}
	}

	var (
		data     T
		attempts int
		lastErr  *Error
	)

	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempts++
		out, err := s.runAttempt(ctx)
		if err != nil {
			lastErr = Classify(err)
			s.log.Debugw(
				"msg", "scrape attempt failed",
				"attempt", attempts,
				"kind", lastErr.Kind.String(),
				"error", lastErr.Error(),
			)
			if lastErr.Kind.Retryable() {
				return retry.RetryableError(lastErr)
			}
			return lastErr
		}
		data = out
		return nil
	})

	elapsed := time.Since(start)

	if err == nil {
		s.breaker.RecordSuccess()
		if s.monitor != nil {
			s.monitor.RecordSuccess(s.cfg.Name, elapsed)
		}
		return Result[T]{
			Success:       true,
			Data:          data,
			ExecutionTime: elapsed,
			Attempts:      attempts,
			CircuitState:  s.breaker.State(),
		}
	}

	if lastErr == nil || ctx.Err() != nil {
		// the caller gave up; nothing to learn about the upstream
		cause := Classify(ctx.Err())
		if cause == nil {
			cause = Classify(err)
		}
		s.log.Debugw("msg", "scrape abandoned by caller", "attempts", attempts, "error", cause.Error())
		return Result[T]{
			Err:           cause,
			ExecutionTime: elapsed,
			Attempts:      attempts,
			CircuitState:  s.breaker.State(),
		}
	}
	if lastErr.Kind.CountsTowardBreaker() {
		s.breaker.RecordFailure()
	}
	if s.monitor != nil {
		s.monitor.RecordFailure(s.cfg.Name, elapsed)
	}

	state := s.breaker.State()
	s.log.Warnw(
		"msg", "scrape failed",
		"attempts", attempts,
		"kind", lastErr.Kind.String(),
		"error", lastErr.Error(),
		"circuit_state", state.String(),
		"duration_ms", elapsed.Milliseconds(),
	)

	return Result[T]{
		Err:           lastErr,
		ExecutionTime: elapsed,
		Attempts:      attempts,
		CircuitState:  state,
	}
}

func (s *Scraper[T]) runAttempt(ctx context.Context) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(KindInternal, fmt.Sprintf("panic in %s: %v", s.cfg.Name, r))
		}
	}()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.attempt(ctx)
}

// backoff yields min(BaseDelay*2^i, MaxDelay), optionally jittered.
// A fresh value is needed per Scrape because go-retry backoffs are stateful.
func (s *Scraper[T]) backoff() retry.Backoff {
	base := s.cfg.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	b := retry.NewExponential(base)
	if s.cfg.MaxDelay > 0 {
		b = retry.WithCappedDuration(s.cfg.MaxDelay, b)
	}
	if s.cfg.JitterPercent > 0 {
		b = retry.WithJitterPercent(s.cfg.JitterPercent, b)
	}
	return retry.WithMaxRetries(uint64(s.cfg.MaxRetries), b)
}

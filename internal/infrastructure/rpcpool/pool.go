// Package rpcpool runs blockchain RPC calls against an ordered list of
// endpoints with a per-attempt timeout, bounded retries with capped
// exponential backoff, and failover from unhealthy endpoints.
package rpcpool

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

// Policy is the retry and failover policy of a pool.
type Policy struct {
	// Timeout bounds a single attempt against a single endpoint.
	Timeout time.Duration
	// MaxAttempts counts every attempt, including the first.
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	JitterPercent     uint64
	UnhealthyCooldown time.Duration
}

// DefaultPolicy is used for zero fields of a configured policy.
var DefaultPolicy = Policy{
	Timeout:           10 * time.Second,
	MaxAttempts:       3,
	InitialBackoff:    250 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	JitterPercent:     20,
	UnhealthyCooldown: 30 * time.Second,
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy.Timeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultPolicy.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.JitterPercent > 100 {
		p.JitterPercent = 100
	}
	return p
}

func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaxBackoff, b)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Endpoint pairs an RPC URL with the client dialed for it.
type Endpoint[C any] struct {
	URL    string
	Client C
}

type endpoint[C any] struct {
	url    string
	host   string
	client C

	mu             sync.Mutex
	unhealthyUntil time.Time
}

func (e *endpoint[C]) healthy(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !now.Before(e.unhealthyUntil)
}

func (e *endpoint[C]) markUnhealthy(until time.Time) {
	e.mu.Lock()
	e.unhealthyUntil = until
	e.mu.Unlock()
}

func (e *endpoint[C]) markHealthy() {
	e.mu.Lock()
	e.unhealthyUntil = time.Time{}
	e.mu.Unlock()
}

// Pool is safe for concurrent use. Endpoint health is best-effort shared state.
type Pool[C any] struct {
	chain     string
	endpoints []*endpoint[C]
	policy    Policy
	clock     biztime.Clock
	recorder  metrics.Recorder
	logger    logger.Interface
}

// Option customizes a pool.
type Option[C any] func(*Pool[C])

func WithClock[C any](clock biztime.Clock) Option[C] {
	return func(p *Pool[C]) { p.clock = biztime.OrDefault(clock) }
}

func WithRecorder[C any](r metrics.Recorder) Option[C] {
	return func(p *Pool[C]) { p.recorder = metrics.OrNoop(r) }
}

// New creates a pool. Endpoints are tried in the given order: the first is
// the primary, the rest are fallbacks.
func New[C any](chain string, endpoints []Endpoint[C], policy Policy, log logger.Interface, opts ...Option[C]) (*Pool[C], error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("rpc pool %s: at least one endpoint is required", chain)
	}

	p := &Pool[C]{
		chain:    chain,
		policy:   policy.withDefaults(),
		clock:    biztime.NowUTC,
		recorder: metrics.NoopRecorder{},
		logger:   log.Named("rpcpool").With("chain", chain),
	}
	for _, e := range endpoints {
		p.endpoints = append(p.endpoints, &endpoint[C]{url: e.URL, host: hostOf(e.URL), client: e.Client})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Chain returns the chain the pool serves.
func (p *Pool[C]) Chain() string {
	return p.chain
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "endpoint"
	}
	return u.Host
}

// Do runs fn until it succeeds, returns a permanent error, or the attempt
// budget is spent. Each attempt gets its own timeout and moves to the next
// endpoint in failover order. Exhausting the budget yields ErrRPCUnavailable.
func (p *Pool[C]) Do(ctx context.Context, op string, fn func(ctx context.Context, client C) error) error {
	order := p.order()
	attempt := 0
	var lastErr error

	err := retry.Do(ctx, p.policy.backoff(), func(ctx context.Context) error {
		ep := order[attempt%len(order)]
		attempt++

		err := p.attempt(ctx, op, ep, fn)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if stderrors.As(err, &perm) {
			return err
		}
		if ctx.Err() != nil {
			// the caller gave up; not the endpoint's fault
			return ctx.Err()
		}

		lastErr = err
		ep.markUnhealthy(p.clock().Add(p.policy.UnhealthyCooldown))
		p.logger.Warnw("rpc attempt failed",
			"op", op,
			"endpoint", ep.host,
			"attempt", attempt,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}

	var perm *permanentError
	if stderrors.As(err, &perm) {
		return perm.err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if lastErr == nil {
		lastErr = err
	}
	p.logger.Errorw("rpc endpoints exhausted", "op", op, "attempts", attempt, "error", lastErr)
	return errors.ErrRPCUnavailable.Wrapf("%s %s after %d attempts: %v", p.chain, op, attempt, lastErr)
}

func (p *Pool[C]) attempt(ctx context.Context, op string, ep *endpoint[C], fn func(ctx context.Context, client C) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, p.policy.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(attemptCtx, ep.client)
	outcome := "ok"
	var perm *permanentError
	switch {
	case err == nil:
		ep.markHealthy()
	case stderrors.As(err, &perm):
		// the endpoint answered; the answer is final
		ep.markHealthy()
		outcome = "permanent"
	default:
		outcome = "error"
	}
	p.recorder.ObserveLatency(metrics.RPCRequest, time.Since(start), map[string]string{
		metrics.LabelChain:   p.chain,
		metrics.LabelOutcome: outcome,
	})
	return err
}

// order lists healthy endpoints first, each group keeping configured order.
// When every endpoint is cooling down they are all still tried.
func (p *Pool[C]) order() []*endpoint[C] {
	now := p.clock()
	healthy := make([]*endpoint[C], 0, len(p.endpoints))
	var cooling []*endpoint[C]
	for _, e := range p.endpoints {
		if e.healthy(now) {
			healthy = append(healthy, e)
		} else {
			cooling = append(cooling, e)
		}
	}
	return append(healthy, cooling...)
}

// Call is Do for operations that return a value.
func Call[C, T any](ctx context.Context, p *Pool[C], op string, fn func(ctx context.Context, client C) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func(ctx context.Context, client C) error {
		v, err := fn(ctx, client)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a final answer from the endpoint, such as "not
// found" or a business rejection. The pool returns it unchanged without
// retrying or failing over.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

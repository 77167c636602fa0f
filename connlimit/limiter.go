/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package connlimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vasayxtx/go-glob"
	"go.uber.org/atomic"

	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/retry"
)

// Source tells which store granted a lease.
type Source int

// Lease sources.
const (
	SourceLocal Source = iota
	SourceDistributed
)

// String returns a label-friendly name of the source.
func (s Source) String() string {
	if s == SourceDistributed {
		return "distributed"
	}
	return "local"
}

// Lease is a granted slot in a single scope. It must be returned with Limiter.Release exactly once.
// A local lease becomes distributed when the limiter accounts it in the recovered distributed store.
type Lease struct {
	scope    Scope
	source   atomic.Int32
	released atomic.Bool
}

func newLease(scope Scope, source Source) *Lease {
	lease := &Lease{scope: scope}
	lease.source.Store(int32(source))
	return lease
}

// Scope returns the scope of the lease.
func (l *Lease) Scope() Scope {
	return l.scope
}

// Source returns the store that granted the lease.
func (l *Lease) Source() Source {
	return Source(l.source.Load())
}

// ConnectionLease holds the slots of a single downstream connection.
// PerAddress is nil for addresses excluded from per-address limiting.
type ConnectionLease struct {
	Global     *Lease
	PerAddress *Lease
}

// Limits contains the caps per scope kind. Zero closes the scope.
type Limits struct {
	Global     int64
	PerAddress int64
}

const (
	defaultOperationTimeout   = DefaultRedisOperationTimeout
	defaultReleaseRetryPeriod = 50 * time.Millisecond
)

// LimiterOpts contains optional parameters for constructing Limiter.
type LimiterOpts struct {
	// Distributed is the shared store. Only the local store is used when it is nil.
	Distributed DistributedStore

	// OperationTimeout bounds every call to the distributed store.
	OperationTimeout time.Duration

	// ReleaseRetryPolicy is used when a distributed release fails.
	ReleaseRetryPolicy retry.Policy

	// ExcludedAddresses contains glob patterns of addresses that bypass per-address limiting.
	ExcludedAddresses []string

	Metrics MetricsCollector
}

// Limiter grants connection slots from the distributed store and degrades to the local store when
// the distributed one fails. Degraded mode is left only by Probe.
//
// The local store counts every live lease of this instance whatever store granted it,
// so after a failover the local limits still see the connections admitted before.
type Limiter struct {
	limits             Limits
	local              *LocalStore
	distributed        DistributedStore
	operationTimeout   time.Duration
	releaseRetryPolicy retry.Policy
	excludedAddresses  []func(s string) bool
	degraded           atomic.Bool
	// Number of live distributed leases per scope. Used to refresh key TTLs.
	held *xsync.MapOf[Scope, int64]

	// Live leases granted by the local store while the distributed one was unavailable.
	// They are added to the distributed store when it recovers.
	mu          sync.Mutex
	localLeases map[*Lease]struct{}

	logger  log.FieldLogger
	metrics MetricsCollector
}

// NewLimiter creates a new Limiter.
func NewLimiter(limits Limits, logger log.FieldLogger, opts LimiterOpts) *Limiter {
	if opts.OperationTimeout == 0 {
		opts.OperationTimeout = defaultOperationTimeout
	}
	if opts.ReleaseRetryPolicy == nil {
		opts.ReleaseRetryPolicy = retry.NewConstantBackoffPolicy(defaultReleaseRetryPeriod, DefaultRedisReleaseRetries)
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	excluded := make([]func(s string) bool, 0, len(opts.ExcludedAddresses))
	for _, pattern := range opts.ExcludedAddresses {
		excluded = append(excluded, glob.Compile(pattern))
	}
	return &Limiter{
		limits:             limits,
		local:              NewLocalStore(),
		distributed:        opts.Distributed,
		operationTimeout:   opts.OperationTimeout,
		releaseRetryPolicy: opts.ReleaseRetryPolicy,
		excludedAddresses:  excluded,
		held:               xsync.NewMapOf[Scope, int64](),
		localLeases:        make(map[*Lease]struct{}),
		logger:             logger,
		metrics:            opts.Metrics,
	}
}

// NewLimiterFromConfig creates a new Limiter (and the Redis store if configured) from the configuration.
func NewLimiterFromConfig(cfg *Config, logger log.FieldLogger, metrics MetricsCollector) (*Limiter, error) {
	opts := LimiterOpts{
		ExcludedAddresses: cfg.PerAddress.ExcludedAddresses,
		Metrics:           metrics,
	}
	if cfg.Store.Type == StoreTypeRedis {
		redisCfg := cfg.Store.Redis
		store, err := NewRedisStore(redisCfg.URL, redisCfg.KeyPrefix, redisCfg.KeyTTL.Duration())
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		opts.Distributed = store
		opts.OperationTimeout = redisCfg.OperationTimeout.Duration()
		opts.ReleaseRetryPolicy = retry.NewConstantBackoffPolicy(defaultReleaseRetryPeriod, redisCfg.ReleaseRetries)
	}
	return NewLimiter(Limits{Global: cfg.Global.Limit, PerAddress: cfg.PerAddress.Limit}, logger, opts), nil
}

// Degraded reports whether counters are currently evaluated by the local store
// because the distributed one is unavailable.
func (l *Limiter) Degraded() bool {
	return l.degraded.Load()
}

// Distributed reports whether the limiter has a distributed store configured.
func (l *Limiter) Distributed() bool {
	return l.distributed != nil
}

// Close closes the distributed store if any.
func (l *Limiter) Close() error {
	if l.distributed == nil {
		return nil
	}
	return l.distributed.Close()
}

func (l *Limiter) limitFor(scope Scope) int64 {
	if scope.Kind == ScopeKindAddress {
		return l.limits.PerAddress
	}
	return l.limits.Global
}

// TryAcquire takes a slot in the scope. *LimitExceededError is returned if the scope is saturated.
// A failure of the distributed store is never returned: the limiter switches to the local store instead.
func (l *Limiter) TryAcquire(ctx context.Context, scope Scope) (*Lease, error) {
	limit := l.limitFor(scope)

	if l.distributed != nil && !l.degraded.Load() {
		opCtx, opCtxCancel := context.WithTimeout(ctx, l.operationTimeout)
		_, err := l.distributed.IncrementIfBelowLimit(opCtx, scope, limit)
		opCtxCancel()
		switch {
		case err == nil:
			l.local.add(scope)
			l.holdScope(scope, 1)
			l.metrics.IncAcquired(scope.Kind, SourceDistributed)
			return newLease(scope, SourceDistributed), nil
		case errors.Is(err, ErrAtLimit):
			l.metrics.IncRejected(scope.Kind, SourceDistributed)
			return nil, &LimitExceededError{Scope: scope}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			l.enterDegradedMode(err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.local.IncrementIfBelowLimit(ctx, scope, limit); err != nil {
		l.metrics.IncRejected(scope.Kind, SourceLocal)
		return nil, &LimitExceededError{Scope: scope}
	}
	lease := newLease(scope, SourceLocal)
	if l.distributed != nil {
		l.localLeases[lease] = struct{}{}
	}
	l.metrics.IncAcquired(scope.Kind, SourceLocal)
	return lease, nil
}

// Release returns the slot to the store that granted it.
// Releasing the same lease twice is an invariant violation: it is logged and otherwise ignored.
func (l *Limiter) Release(ctx context.Context, lease *Lease) {
	if lease == nil {
		return
	}
	if !lease.released.CompareAndSwap(false, true) {
		l.logger.Error("connection slot released twice, ignoring",
			log.String("scope", lease.scope.String()), log.String("source", lease.Source().String()))
		l.metrics.IncInvariantViolations(violationDoubleRelease)
		return
	}

	l.mu.Lock()
	source := lease.Source()
	if source == SourceLocal {
		delete(l.localLeases, lease)
	}
	l.mu.Unlock()

	if _, err := l.local.Decrement(ctx, lease.scope); err != nil {
		l.logUnderflow(lease)
	}
	if source == SourceLocal {
		return
	}

	l.holdScope(lease.scope, -1)
	err := retry.DoWithRetry(ctx, l.releaseRetryPolicy,
		func(err error) bool { return !errors.Is(err, ErrUnderflow) },
		func(err error, delay time.Duration) {
			l.logger.Warn("failed to release connection slot in distributed store, will retry",
				log.String("scope", lease.scope.String()), log.Duration("delay", delay), log.Error(err))
		},
		func(ctx context.Context) error {
			opCtx, opCtxCancel := context.WithTimeout(ctx, l.operationTimeout)
			defer opCtxCancel()
			_, decErr := l.distributed.Decrement(opCtx, lease.scope)
			return decErr
		})
	switch {
	case err == nil:
	case errors.Is(err, ErrUnderflow):
		l.logUnderflow(lease)
	default:
		l.logger.Error("failed to release connection slot in distributed store, "+
			"the counter stays inflated until its key expires",
			log.String("scope", lease.scope.String()), log.Error(err))
		l.metrics.IncReleaseFailures()
		if ctx.Err() == nil {
			l.enterDegradedMode(err)
		}
	}
}

func (l *Limiter) logUnderflow(lease *Lease) {
	l.logger.Error("connection counter underflow, clamped to zero",
		log.String("scope", lease.scope.String()), log.String("source", lease.Source().String()))
	l.metrics.IncInvariantViolations(violationUnderflow)
}

// AcquireConnection takes the global slot and then the per-address one.
// If the per-address scope is saturated, the global slot is returned before the error.
func (l *Limiter) AcquireConnection(ctx context.Context, addr string) (*ConnectionLease, error) {
	globalLease, err := l.TryAcquire(ctx, GlobalScope())
	if err != nil {
		return nil, err
	}
	if l.isExcluded(addr) {
		return &ConnectionLease{Global: globalLease}, nil
	}
	addrLease, err := l.TryAcquire(ctx, AddressScope(addr))
	if err != nil {
		l.Release(context.WithoutCancel(ctx), globalLease)
		return nil, err
	}
	return &ConnectionLease{Global: globalLease, PerAddress: addrLease}, nil
}

// ReleaseConnection returns both slots of the connection.
func (l *Limiter) ReleaseConnection(ctx context.Context, cl *ConnectionLease) {
	if cl == nil {
		return
	}
	l.Release(ctx, cl.PerAddress)
	l.Release(ctx, cl.Global)
}

func (l *Limiter) isExcluded(addr string) bool {
	for _, match := range l.excludedAddresses {
		if match(addr) {
			return true
		}
	}
	return false
}

// Probe checks the distributed store. When it is reachable, the slots granted locally during the outage
// are added to it, degraded mode is left, and the TTL of every counter this instance holds slots in is refreshed.
// It is meant to be run by service.PeriodicWorker and never returns an error.
func (l *Limiter) Probe(ctx context.Context) error {
	if l.distributed == nil {
		return nil
	}

	opCtx, opCtxCancel := context.WithTimeout(ctx, l.operationTimeout)
	defer opCtxCancel()

	if err := l.distributed.Ping(opCtx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if l.degraded.Load() {
			l.logger.Debug("distributed connection counters store is still unavailable", log.Error(err))
			return nil
		}
		l.enterDegradedMode(err)
		return nil
	}

	if err := l.accountLocalLeases(opCtx); err != nil {
		l.logger.Warn("failed to account local connection slots in distributed store", log.Error(err))
		return nil
	}

	if l.degraded.CompareAndSwap(true, false) {
		l.logger.Info("distributed connection counters store is available again, leaving degraded mode")
		l.metrics.SetDegraded(false)
		l.metrics.IncRecoveries()
	}

	var scopes []Scope
	l.held.Range(func(scope Scope, n int64) bool {
		if n > 0 {
			scopes = append(scopes, scope)
		}
		return true
	})
	if err := l.distributed.Touch(opCtx, scopes); err != nil {
		l.logger.Warn("failed to refresh TTL of connection counters", log.Int("scopes", len(scopes)), log.Error(err))
	}
	return nil
}

// accountLocalLeases adds the live local leases to the distributed store and makes them distributed,
// so releasing them decrements the shared counters.
func (l *Limiter) accountLocalLeases(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.localLeases) == 0 {
		return nil
	}
	counts := make(map[Scope]int64)
	for lease := range l.localLeases {
		counts[lease.scope]++
	}
	if err := l.distributed.Add(ctx, counts); err != nil {
		return err
	}
	slots := len(l.localLeases)
	for lease := range l.localLeases {
		lease.source.Store(int32(SourceDistributed))
		delete(l.localLeases, lease)
	}
	for scope, n := range counts {
		l.holdScope(scope, n)
	}
	l.logger.Info("local connection slots are accounted in distributed store",
		log.Int("slots", slots), log.Int("scopes", len(counts)))
	return nil
}

func (l *Limiter) enterDegradedMode(err error) {
	if !l.degraded.CompareAndSwap(false, true) {
		return
	}
	l.logger.Error("distributed connection counters store failed, switching to local counters", log.Error(err))
	l.metrics.IncFailovers()
	l.metrics.SetDegraded(true)
}

func (l *Limiter) holdScope(scope Scope, delta int64) {
	l.held.Compute(scope, func(n int64, _ bool) (int64, bool) {
		n += delta
		return n, n <= 0
	})
}

package media

import (
	"context"
	"log/slog"

	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/observe"
	"github.com/MrWong99/chorale/internal/resilience"
)

// Strategy is a named [Resolver] taking part in failover.
type Strategy struct {
	Name     string
	Resolver Resolver
}

// FailoverResolver tries its strategies in order. Each strategy sits behind
// its own circuit breaker so a broken extractor is skipped for a while
// instead of delaying every request.
//
// Only tool and environment failures count against a strategy and move on
// to the next one. A link the tool rejects ([IsSourceError]) fails the
// request at once; the user has to issue a new command.
type FailoverResolver struct {
	group   *resilience.FallbackGroup[Strategy]
	metrics *observe.Metrics
}

var _ Resolver = (*FailoverResolver)(nil)

// NewFailoverResolver creates a resolver trying primary first, then each
// fallback in order. A nil cb.IsFailure defaults to counting everything but
// source errors.
func NewFailoverResolver(metrics *observe.Metrics, cb resilience.CircuitBreakerConfig, primary Strategy, fallbacks ...Strategy) *FailoverResolver {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if cb.IsFailure == nil {
		cb.IsFailure = func(err error) bool { return !IsSourceError(err) }
	}
	cb.OnStateChange = func(name string, from, to resilience.State) {
		slog.Warn("media: resolver circuit changed state", "strategy", name, "from", from, "to", to)
	}
	g := resilience.NewFallbackGroup(primary.Name, primary, resilience.FallbackConfig{CircuitBreaker: cb})
	for _, f := range fallbacks {
		g.AddFallback(f.Name, f)
	}
	return &FailoverResolver{group: g, metrics: metrics}
}

// NewResolver builds the resolver chain described by cfg: the configured
// strategy first and the other one as fallback.
func NewResolver(cfg config.MediaConfig, metrics *observe.Metrics) *FailoverResolver {
	stream := Strategy{Name: string(config.ResolverStream), Resolver: &StreamResolver{Path: cfg.YTDLPPath}}
	download := Strategy{Name: string(config.ResolverDownload), Resolver: &DownloadResolver{Path: cfg.YTDLPPath, CacheDir: cfg.CacheDir}}

	cb := resilience.CircuitBreakerConfig{}
	if cfg.Resolver == config.ResolverDownload {
		return NewFailoverResolver(metrics, cb, download, stream)
	}
	return NewFailoverResolver(metrics, cb, stream, download)
}

// Resolve implements [Resolver].
func (f *FailoverResolver) Resolve(ctx context.Context, source string) (*Resolved, error) {
	return resilience.Execute(ctx, f.group, func(ctx context.Context, s Strategy) (*Resolved, error) {
		res, err := s.Resolver.Resolve(ctx, source)
		status := "ok"
		switch {
		case IsSourceError(err):
			status = "rejected"
		case err != nil:
			status = "error"
		}
		f.metrics.RecordResolve(ctx, s.Name, status)
		return res, err
	})
}

// Strategies returns the strategy names in the order they are tried.
func (f *FailoverResolver) Strategies() []string {
	return f.group.Names()
}

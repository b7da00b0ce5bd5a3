package media_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/media"
	"github.com/MrWong99/chorale/internal/media/mock"
	"github.com/MrWong99/chorale/internal/observe"
	"github.com/MrWong99/chorale/internal/resilience"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestNewResolver_Order(t *testing.T) {
	t.Parallel()
	tests := []struct {
		strategy config.ResolverStrategy
		want     []string
	}{
		{config.ResolverStream, []string{"stream", "download"}},
		{config.ResolverDownload, []string{"download", "stream"}},
	}
	for _, tt := range tests {
		r := media.NewResolver(config.MediaConfig{Resolver: tt.strategy}, testMetrics(t))
		if got := r.Strategies(); !slices.Equal(got, tt.want) {
			t.Errorf("%s: Strategies() = %v, want %v", tt.strategy, got, tt.want)
		}
	}
}

func TestFailoverResolver(t *testing.T) {
	t.Parallel()

	errBroken := errors.New("extractor broken")
	primary := &mock.Resolver{Err: errBroken}
	fallback := &mock.Resolver{}
	r := media.NewFailoverResolver(testMetrics(t),
		resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		media.Strategy{Name: "stream", Resolver: primary},
		media.Strategy{Name: "download", Resolver: fallback},
	)

	for _, src := range []string{"a", "b"} {
		res, err := r.Resolve(context.Background(), src)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", src, err)
		}
		if res.Input != src {
			t.Errorf("Input = %q, want %q", res.Input, src)
		}
	}

	// The primary's circuit opened after the first failure.
	if got := primary.Calls(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("primary calls = %v, want [a]", got)
	}
	if got := fallback.Calls(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("fallback calls = %v, want [a b]", got)
	}
}

func TestFailoverResolver_AllFail(t *testing.T) {
	t.Parallel()
	errBroken := errors.New("exec: permission denied")
	r := media.NewFailoverResolver(testMetrics(t), resilience.CircuitBreakerConfig{},
		media.Strategy{Name: "stream", Resolver: &mock.Resolver{Err: errBroken}},
	)
	_, err := r.Resolve(context.Background(), "x")
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, errBroken) {
		t.Errorf("err = %v, want ErrAllFailed wrapping %v", err, errBroken)
	}
}

func TestFailoverResolver_BadLinksDoNotTripBreakers(t *testing.T) {
	t.Parallel()

	errBad := fmt.Errorf("yt-dlp: %w: exit status 1: ERROR: Unsupported URL", media.ErrSource)
	primary := &mock.Resolver{Errs: map[string]error{"bad": errBad}}
	fallback := &mock.Resolver{Errs: map[string]error{"bad": errBad}}
	r := media.NewFailoverResolver(testMetrics(t),
		resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour},
		media.Strategy{Name: "stream", Resolver: primary},
		media.Strategy{Name: "download", Resolver: fallback},
	)

	for range 5 {
		_, err := r.Resolve(context.Background(), "bad")
		if !errors.Is(err, media.ErrSource) {
			t.Fatalf("Resolve(bad) = %v, want ErrSource", err)
		}
		if errors.Is(err, resilience.ErrAllFailed) {
			t.Fatalf("Resolve(bad) = %v, want no failover", err)
		}
	}

	res, err := r.Resolve(context.Background(), "good")
	if err != nil {
		t.Fatalf("Resolve(good) after bad links: %v", err)
	}
	if res.Input != "good" {
		t.Errorf("Input = %q, want good", res.Input)
	}
	if got := fallback.Calls(); len(got) != 0 {
		t.Errorf("fallback calls = %v, want none", got)
	}
	if got := primary.Calls(); len(got) != 6 {
		t.Errorf("primary calls = %d, want 6", len(got))
	}
}

func TestIsSourceError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("resolve: %w", media.ErrSource), true},
		{fmt.Errorf("resolve: %w", media.ErrNoStream), true},
		{errors.New("exec: \"yt-dlp\": executable file not found in $PATH"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := media.IsSourceError(tt.err); got != tt.want {
			t.Errorf("IsSourceError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// Package feeds refreshes external data on demand: only feeds consumed by
// screens in the active rotation are polled, each on its own interval or
// cron schedule, and screens read the cached results without blocking.
package feeds

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mrjrask/desk-display/pkg/logx"
)

// FetchError identifies which feed a refresh failure came from.
type FetchError struct {
	Feed string
	Err  error
}

func (e *FetchError) Error() string { return "feed " + e.Feed + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Feed is one named data source. Fetch must honor ctx and return the value
// screens will read from the cache.
type Feed struct {
	Name    string
	Fetch   func(ctx context.Context) (any, error)
	Timeout time.Duration // per-fetch bound, default 30s
}

type Config struct {
	// StartupDelay postpones the first refresh pass so the display comes
	// up before the network gets hammered.
	StartupDelay time.Duration
	// Tick is how often due feeds are checked.
	Tick time.Duration
	// Intervals maps feed name to a refresh spec: a duration or a cron
	// expression. Feeds without an entry use DefaultInterval.
	Intervals map[string]string
	// DefaultInterval applies to feeds not listed in Intervals.
	DefaultInterval time.Duration
}

func (c *Config) fillDefaults() {
	if c.Tick <= 0 {
		c.Tick = 5 * time.Second
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 15 * time.Minute
	}
}

type Service struct {
	cfg   Config
	log   logx.Logger
	cache *Cache

	feeds map[string]Feed
	specs map[string]refreshSpec

	mu        sync.Mutex
	requested map[string]struct{}

	kick chan struct{}
}

// NewService wires feeds to their refresh specs. Interval entries naming an
// unregistered feed are an error so config typos surface at startup.
func NewService(cfg Config, log logx.Logger, cache *Cache, feeds []Feed) (*Service, error) {
	cfg.fillDefaults()
	s := &Service{
		cfg:       cfg,
		log:       log,
		cache:     cache,
		feeds:     make(map[string]Feed, len(feeds)),
		specs:     make(map[string]refreshSpec, len(feeds)),
		requested: map[string]struct{}{},
		kick:      make(chan struct{}, 1),
	}
	for _, f := range feeds {
		if f.Name == "" || f.Fetch == nil {
			return nil, fmt.Errorf("feed requires name and fetch func")
		}
		if _, dup := s.feeds[f.Name]; dup {
			return nil, fmt.Errorf("duplicate feed %q", f.Name)
		}
		s.feeds[f.Name] = f
	}
	for name, raw := range cfg.Intervals {
		if _, ok := s.feeds[name]; !ok {
			return nil, fmt.Errorf("refresh interval for unknown feed %q", name)
		}
		spec, err := parseRefreshSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", name, err)
		}
		s.specs[name] = spec
	}
	for name := range s.feeds {
		if _, ok := s.specs[name]; !ok {
			s.specs[name] = refreshSpec{every: cfg.DefaultInterval}
		}
	}
	return s, nil
}

// SetRequested replaces the set of feeds worth polling. Called whenever the
// screen rotation changes; feeds outside the set keep their cached values
// but are not refreshed.
func (s *Service) SetRequested(names map[string]struct{}) {
	cp := make(map[string]struct{}, len(names))
	for n := range names {
		if _, ok := s.feeds[n]; ok {
			cp[n] = struct{}{}
		}
	}
	s.mu.Lock()
	s.requested = cp
	s.mu.Unlock()
}

func (s *Service) requestedNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requested))
	for n := range s.requested {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Run is the refresh loop. It first waits out the startup delay, then on
// every tick fetches whichever requested feeds are due.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.StartupDelay):
		}
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.refreshDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refreshDue(ctx)
		case <-s.kick:
			s.refreshAll(ctx)
		}
	}
}

// RefreshNow asks the run loop to fetch every requested feed regardless of
// due time. Called after a schedule change introduces screens whose feeds
// have never been polled. Non-blocking; a pending kick is enough.
func (s *Service) RefreshNow() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Service) refreshAll(ctx context.Context) {
	now := time.Now()
	for _, name := range s.requestedNames() {
		if ctx.Err() != nil {
			return
		}
		s.fetchOne(ctx, name, now)
	}
}

func (s *Service) refreshDue(ctx context.Context) {
	now := time.Now()
	for _, name := range s.requestedNames() {
		if ctx.Err() != nil {
			return
		}
		if !s.cache.due(name, now) {
			continue
		}
		s.fetchOne(ctx, name, now)
	}
}

func (s *Service) fetchOne(ctx context.Context, name string, now time.Time) {
	f := s.feeds[name]
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	value, err := f.Fetch(fctx)
	cancel()

	due := s.specs[name].next(now)
	s.cache.markAttempt(name, value, err, now, due)
	if err != nil {
		s.log.Warn("feed refresh failed",
			logx.String("feed", name),
			logx.Time("next_due", due),
			logx.Err(&FetchError{Feed: name, Err: err}),
		)
		return
	}
	s.log.Debug("feed refreshed",
		logx.String("feed", name),
		logx.Time("next_due", due),
	)
}

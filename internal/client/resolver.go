package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Environment selects which of the fixed base URLs is active.
type Environment string

const (
	EnvEmulator   Environment = "emulator"
	EnvDevice     Environment = "device"
	EnvProduction Environment = "production"
)

const (
	defaultLoopbackURL   = "http://127.0.0.1:8000"
	defaultLANURL        = "http://192.168.1.10:8000"
	defaultProductionURL = "https://breathe-easy-api.onrender.com"

	probeTimeout = 5 * time.Second
	resolveTTL   = 30 * time.Second
)

// ConnectivityError reports a failed health probe against a candidate URL.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("backend unreachable at %s: %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Resolver picks the active backend base URL for the current environment and
// optionally validates it with a bounded health probe, caching the last
// successful resolution for 30 seconds.
type Resolver struct {
	env        Environment
	loopback   string
	lan        string
	production string

	httpc *http.Client
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

// ResolverConfig overrides the fixed URL set; zero values fall back to the
// defaults above.
type ResolverConfig struct {
	LoopbackURL   string
	LANURL        string
	ProductionURL string
}

func NewResolver(env Environment, cfg ResolverConfig) *Resolver {
	r := &Resolver{
		env:        env,
		loopback:   cfg.LoopbackURL,
		lan:        cfg.LANURL,
		production: cfg.ProductionURL,
		httpc:      &http.Client{Timeout: probeTimeout},
		ttl:        resolveTTL,
		now:        time.Now,
	}
	if r.loopback == "" {
		r.loopback = defaultLoopbackURL
	}
	if r.lan == "" {
		r.lan = defaultLANURL
	}
	if r.production == "" {
		r.production = defaultProductionURL
	}
	return r
}

// BaseURL is a pure function of the configured environment. Nothing is
// validated at this layer.
func (r *Resolver) BaseURL() string {
	switch r.env {
	case EnvEmulator:
		return r.loopback
	case EnvDevice:
		return r.lan
	default:
		return r.production
	}
}

// ValidatedBaseURL returns the active base URL only after a successful
// GET /health probe. A single probe, no retry; the caller decides whether
// to try again.
func (r *Resolver) ValidatedBaseURL(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" && r.now().Sub(r.cachedAt) < r.ttl {
		return r.cached, nil
	}

	candidate := r.BaseURL()
	if err := r.probe(ctx, candidate); err != nil {
		return "", &ConnectivityError{URL: candidate, Err: err}
	}

	r.cached = candidate
	r.cachedAt = r.now()
	return candidate, nil
}

func (r *Resolver) probe(ctx context.Context, base string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

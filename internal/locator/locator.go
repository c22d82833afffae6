package locator

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// Mode tags a resolved base URL with where it lives relative to the terminal.
type Mode string

const (
	ModeLocalhost    Mode = "localhost"
	ModeLocal        Mode = "local"
	ModeOnline       Mode = "online"
	ModeDisconnected Mode = "disconnected"
)

const (
	cacheValidity = 5 * time.Second
	probeTimeout  = 2500 * time.Millisecond
)

type Candidate struct {
	URL  string
	Mode Mode
}

type Resolution struct {
	URL  string `json:"url"`
	Mode Mode   `json:"mode"`
}

// Locator probes a fixed priority-ordered list of candidate base URLs and
// caches the first reachable one for a short window. When no candidate
// answers, it falls back to the first (localhost) URL tagged disconnected.
type Locator struct {
	candidates []Candidate
	client     *resty.Client

	mu       sync.Mutex
	cached   *Resolution
	cachedAt time.Time
	nowFunc  func() time.Time
}

func New(candidates []Candidate) *Locator {
	return &Locator{
		candidates: candidates,
		client:     resty.New().SetTimeout(probeTimeout),
		nowFunc:    time.Now,
	}
}

// Resolve returns the current base URL and its mode. A probe round is only
// performed when the cached resolution has expired; a single probe round
// never retries individual candidates.
func (l *Locator) Resolve(ctx context.Context) Resolution {

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && l.nowFunc().Sub(l.cachedAt) < cacheValidity {
		return *l.cached
	}

	for _, c := range l.candidates {
		if l.probe(ctx, c.URL) {
			logger.Infof("Resolved POS server %s (%s)", c.URL, c.Mode)
			l.remember(Resolution{URL: c.URL, Mode: c.Mode})
			return *l.cached
		}
	}

	logger.Warning("No POS server reachable, falling back to localhost")
	l.remember(Resolution{URL: l.candidates[0].URL, Mode: ModeDisconnected})
	return *l.cached
}

// Invalidate drops the cached resolution so the next Resolve re-probes.
// Called on connectivity transitions and on repeated request failures.
func (l *Locator) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}

func (l *Locator) remember(r Resolution) {
	l.cached = &r
	l.cachedAt = l.nowFunc()
}

func (l *Locator) probe(ctx context.Context, baseURL string) bool {
	resp, err := l.client.R().SetContext(ctx).Get(baseURL + "/health")
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

package locator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(t *testing.T, up bool, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		require.Equal(t, "/health", r.URL.Path)
		if up {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(svr.Close)
	return svr
}

func TestResolvePrefersFirstReachable(t *testing.T) {

	down := healthServer(t, false, nil)
	up := healthServer(t, true, nil)

	l := New([]Candidate{
		{URL: down.URL, Mode: ModeLocalhost},
		{URL: up.URL, Mode: ModeLocal},
	})

	res := l.Resolve(context.Background())
	assert.Equal(t, up.URL, res.URL)
	assert.Equal(t, ModeLocal, res.Mode)
}

func TestResolveFallsBackDisconnected(t *testing.T) {

	down := healthServer(t, false, nil)
	alsoDown := healthServer(t, false, nil)

	l := New([]Candidate{
		{URL: down.URL, Mode: ModeLocalhost},
		{URL: alsoDown.URL, Mode: ModeOnline},
	})

	res := l.Resolve(context.Background())
	assert.Equal(t, down.URL, res.URL)
	assert.Equal(t, ModeDisconnected, res.Mode)
}

func TestResolveCaches(t *testing.T) {

	var hits atomic.Int64
	up := healthServer(t, true, &hits)

	l := New([]Candidate{{URL: up.URL, Mode: ModeLocalhost}})

	first := l.Resolve(context.Background())
	second := l.Resolve(context.Background())

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolveCacheExpires(t *testing.T) {

	var hits atomic.Int64
	up := healthServer(t, true, &hits)

	l := New([]Candidate{{URL: up.URL, Mode: ModeLocalhost}})

	now := time.Now()
	l.nowFunc = func() time.Time { return now }

	l.Resolve(context.Background())
	now = now.Add(cacheValidity + time.Second)
	l.Resolve(context.Background())

	assert.Equal(t, int64(2), hits.Load())
}

func TestInvalidateForcesReprobe(t *testing.T) {

	var hits atomic.Int64
	up := healthServer(t, true, &hits)

	l := New([]Candidate{{URL: up.URL, Mode: ModeLocalhost}})

	l.Resolve(context.Background())
	l.Invalidate()
	l.Resolve(context.Background())

	assert.Equal(t, int64(2), hits.Load())
}

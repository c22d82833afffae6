package netwatch

import (
	"context"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/locator"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/order"
)

const (
	DetectInterval = 10 * time.Second
	FlushInterval  = 30 * time.Second
)

// Syncer is the push path the watcher flushes queued changes through.
type Syncer interface {
	Push(ctx context.Context) order.PushResult
}

// Watcher tracks whether any POS server is reachable. It re-detects the
// server every DetectInterval and flushes queued local changes every
// FlushInterval while online. On an offline-to-online transition it
// invalidates the locator cache, re-resolves and triggers a push right away.
type Watcher struct {
	locator        *locator.Locator
	online         atomic.Bool
	detectInterval time.Duration
	flushInterval  time.Duration
}

func NewWatcher(loc *locator.Locator) *Watcher {
	return &Watcher{
		locator:        loc,
		detectInterval: DetectInterval,
		flushInterval:  FlushInterval,
	}
}

func (w *Watcher) Online() bool {
	return w.online.Load()
}

// SetOnline feeds an external connectivity notification into the watcher,
// mirroring the browser online/offline events the dashboard reacts to.
func (w *Watcher) SetOnline(ctx context.Context, online bool, syncer Syncer) {
	if online {
		w.cameOnline(ctx, syncer)
		return
	}
	if w.online.Swap(false) {
		logger.Warning("Connectivity lost, queueing changes locally")
		w.locator.Invalidate()
	}
}

// Run blocks until ctx is cancelled, driving detection and flush timers.
func (w *Watcher) Run(ctx context.Context, syncer Syncer) {

	w.detect(ctx, syncer)

	detectTicker := time.NewTicker(w.detectInterval)
	defer detectTicker.Stop()
	flushTicker := time.NewTicker(w.flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancel, stopping connectivity watcher")
			return
		case <-detectTicker.C:
			w.detect(ctx, syncer)
		case <-flushTicker.C:
			if w.online.Load() {
				syncer.Push(ctx)
			}
		}
	}
}

func (w *Watcher) detect(ctx context.Context, syncer Syncer) {
	res := w.locator.Resolve(ctx)
	if res.Mode == locator.ModeDisconnected {
		if w.online.Swap(false) {
			logger.Warning("Connectivity lost, queueing changes locally")
		}
		return
	}
	w.cameOnline(ctx, syncer)
}

func (w *Watcher) cameOnline(ctx context.Context, syncer Syncer) {
	if w.online.Swap(true) {
		return
	}
	logger.Info("Connectivity restored, flushing queued changes")
	w.locator.Invalidate()
	w.locator.Resolve(ctx)
	if syncer != nil {
		syncer.Push(ctx)
	}
}

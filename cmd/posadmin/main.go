package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/api"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/config"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/locator"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/netwatch"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/order"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/realtime"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/retry"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/router"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/handlers"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/store"
)

func main() {
	conf, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	st, err := store.NewStore(conf.DatabasePath)
	if err != nil {
		panic(err)
	}

	candidates := []locator.Candidate{
		{URL: conf.LocalhostURL, Mode: locator.ModeLocalhost},
	}
	for _, u := range conf.LANURLs {
		candidates = append(candidates, locator.Candidate{URL: u, Mode: locator.ModeLocal})
	}
	if conf.CloudURL != "" {
		candidates = append(candidates, locator.Candidate{URL: conf.CloudURL, Mode: locator.ModeOnline})
	}
	loc := locator.New(candidates)

	client := api.NewClient(loc)
	// dashboard requests must not stall behind long retry sleeps; the
	// watcher and flush tickers pick up whatever a fast attempt misses
	client.SetBackoff(retry.BackoffOptions{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond})
	watcher := netwatch.NewWatcher(loc)
	syncer := order.NewSyncer(st, client, watcher.Online)

	ctx := context.Background()
	go watcher.Run(ctx, syncer)

	channel := realtime.NewChannel(func(ctx context.Context) string {
		return loc.Resolve(ctx).URL
	})
	pullOnEvent := func(json.RawMessage) {
		if _, err := syncer.Pull(ctx); err != nil && !errors.Is(err, order.ErrSyncInProgress) {
			logger.Warning(err.Error())
		}
	}
	channel.On("order:new", pullOnEvent)
	channel.On("order:update", pullOnEvent)
	// the websocket dropping or coming back is a connectivity signal in its
	// own right, no need to wait for the next detect tick
	channel.OnConnect(func() { watcher.SetOnline(ctx, true, syncer) })
	channel.OnDisconnect(func() { watcher.SetOnline(ctx, false, syncer) })
	go channel.Run(ctx)

	handlerSet := handlers.NewHandlerSet(
		[]byte(conf.Secret),
		conf.AuthCookieExpiresIn,
		conf.AdminLogin,
		conf.AdminPasswordHash,
		syncer,
		client,
		watcher,
		loc,
	)

	r := router.NewRouter(conf, handlerSet)

	logger.Infof("POS admin facade listening on %s", conf.RunAddress)
	err = r.ListenAndServe()
	if err != nil {
		panic(err)
	}
}

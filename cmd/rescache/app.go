package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/codec"
	gen "github.com/unkn0wn-root/rescache/genstore"
	asynchook "github.com/unkn0wn-root/rescache/hooks/async"
	"github.com/unkn0wn-root/rescache/internal/config"
	zlog "github.com/unkn0wn-root/rescache/log/zerolog"
	pr "github.com/unkn0wn-root/rescache/provider"
	bcp "github.com/unkn0wn-root/rescache/provider/bigcache"
	"github.com/unkn0wn-root/rescache/provider/memory"
	rdp "github.com/unkn0wn-root/rescache/provider/redis"
	rtp "github.com/unkn0wn-root/rescache/provider/ristretto"
	"github.com/unkn0wn-root/rescache/resource"
	"github.com/unkn0wn-root/rescache/sloghooks"
	"github.com/unkn0wn-root/rescache/transport"
)

const genRetention = 30 * 24 * time.Hour

type app struct {
	ctl   *rescache.Controller
	items resource.Descriptor
	hooks *asynchook.Hooks
	poll  time.Duration
}

func newApp(cfg *config.Config) (*app, error) {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(cfg.Level()).
		With().Timestamp().Str("ns", cfg.Namespace).Logger()

	items, err := resource.New(cfg.Resource, cfg.BaseURL, resource.WithDefaultCacheExpiry(cfg.CacheExpiry))
	if err != nil {
		return nil, err
	}
	cd, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	prov, gens, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	opts := []transport.Option{
		transport.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		transport.WithUserAgent("rescache-cli"),
	}
	if cfg.Token != "" {
		opts = append(opts, transport.WithStaticToken(cfg.Token))
	}

	hl := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	hooks := asynchook.New(sloghooks.New(hl, sloghooks.Options{SelfHealEvery: 10}), 1, 256)

	ctl, err := rescache.New(rescache.Options{
		Namespace: cfg.Namespace,
		Provider:  prov,
		Codec:     cd,
		GenStore:  gens,
		Transport: transport.New(opts...),
		Logger:    zlog.New(zl),
		Hooks:     hooks,
		EntryTTL:  cfg.EntryTTL,
	})
	if err != nil {
		hooks.Close()
		return nil, err
	}
	zl.Debug().Str("provider", cfg.Provider).Str("codec", cfg.Codec).Msg("controller ready")
	return &app{ctl: ctl, items: items, hooks: hooks, poll: cfg.PollInterval}, nil
}

// openStore returns the provider named by cfg and, for redis, a generation
// store on the same server. A nil GenStore selects the in-process default.
func openStore(cfg *config.Config) (pr.Provider, gen.GenStore, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil, nil
	case "ristretto":
		p, err := rtp.New(rtp.DefaultConfig(cfg.MaxCost))
		return p, nil, err
	case "bigcache":
		p, err := bcp.New(bcp.Config{LifeWindow: cfg.EntryTTL})
		return p, nil, err
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		p, err := rdp.New(rdp.Config{Client: rdb, Ping: true})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		// the genstore owns the client and closes it
		return p, gen.NewRedis(rdb, cfg.Namespace, genRetention), nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.ctl.Close(ctx)
	a.hooks.Close()
}

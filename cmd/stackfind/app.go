package main

import (
	"github.com/pbaille/stackfind/internal/config"
	"github.com/pbaille/stackfind/internal/fetcher"
	"github.com/pbaille/stackfind/internal/finder"
	"github.com/pbaille/stackfind/internal/metrics"
	"github.com/pbaille/stackfind/internal/session"
	"github.com/pbaille/stackfind/internal/store"
)

// app holds the wired components for one command invocation
type app struct {
	store   *store.Store
	finder  *finder.Finder
	metrics *metrics.Metrics
}

func openApp(cfg *config.Config) (*app, error) {
	policy, err := finder.ParsePolicy(cfg.Search.Policy)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	sess := session.New(st, fetcher.New(cfg.Search.CallTimeout), session.Options{
		TTL:          cfg.Cache.TTL,
		CallTimeout:  cfg.Search.CallTimeout,
		Retries:      cfg.Search.Retries,
		RetryBackoff: cfg.Search.RetryBackoff,
	}).WithMetrics(m)

	f := finder.New(sess, finder.Options{
		BaseURL:     cfg.Search.BaseURL,
		Site:        cfg.Search.Site,
		Tag:         cfg.Search.Tag,
		Filter:      cfg.Search.Filter,
		Concurrency: cfg.Search.Concurrency,
		Policy:      policy,
		Timeout:     cfg.Search.Timeout,
	}).WithMetrics(m)

	return &app{store: st, finder: f, metrics: m}, nil
}

// Close releases the cache database
func (a *app) Close() error {
	return a.store.Close()
}

package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pario-ai/sxsearch/pkg/cache"
	"github.com/pario-ai/sxsearch/pkg/cache/memory"
	"github.com/pario-ai/sxsearch/pkg/cache/sqlite"
	"github.com/pario-ai/sxsearch/pkg/catalog"
	"github.com/pario-ai/sxsearch/pkg/config"
	"github.com/pario-ai/sxsearch/pkg/icons"
	"github.com/pario-ai/sxsearch/pkg/jobs"
	"github.com/pario-ai/sxsearch/pkg/quota"
	"github.com/pario-ai/sxsearch/pkg/refresh"
	"github.com/pario-ai/sxsearch/pkg/stackexchange"
)

// UserAgent is sent with every API request.
var UserAgent = "sxsearch/dev"

// Runtime is a fully wired App plus the resources the command surface
// inspects directly.
type Runtime struct {
	*App
	Store    cache.Store
	Registry jobs.Registry
	Ledger   quota.Ledger

	inline *refresh.InlineLauncher
}

// Close waits for in-process refreshes and releases storage.
func (r *Runtime) Close() error {
	if r.inline != nil {
		r.inline.Wait()
	}
	var firstErr error
	if r.Ledger != nil {
		if err := r.Ledger.Close(); err != nil {
			firstErr = err
		}
	}
	if err := r.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// WorkerArgs builds the command line of the hidden refresh worker.
func WorkerArgs(configPath string) func(spec []byte) []string {
	return func(spec []byte) []string {
		args := []string{"refresh", "--spec", string(spec)}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		return args
	}
}

// Build wires the production stack described by cfg.
func Build(cfg *config.Config, configPath string, logger *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "memory":
		store = memory.New(cfg.Cache.MemoryEntries, time.Now)
	default:
		s, err := sqlite.New(cfg.CacheDBPath())
		if err != nil {
			return nil, err
		}
		store = s
	}

	ledger, err := quota.New(cfg.QuotaDBPath())
	if err != nil {
		store.Close()
		return nil, err
	}

	client := stackexchange.New(stackexchange.Options{
		BaseURL:   cfg.API.URL,
		Key:       cfg.API.Key,
		ClientID:  cfg.API.ClientID,
		UserAgent: UserAgent,
		Timeout:   cfg.API.Timeout,
		RetryMax:  cfg.API.RetryMax,
		Quota:     ledger,
		Logger:    logger.With(slog.String("component", "api")),
	})

	rt := &Runtime{
		Store:    store,
		Registry: jobs.NewFileRegistry(cfg.JobsDir()),
		Ledger:   ledger,
	}

	var launcher refresh.Launcher
	if cfg.Jobs.Mode == "inline" {
		rt.inline = &refresh.InlineLauncher{}
		launcher = rt.inline
	} else {
		launcher = &refresh.ProcessLauncher{Args: WorkerArgs(configPath)}
	}

	coord := refresh.New(store, rt.Registry, launcher,
		refresh.WithLogger(logger),
		refresh.WithJobTimeout(cfg.Jobs.Timeout),
	)

	cat := catalog.New(coord, client, icons.PNGCompositor{}, catalog.Options{
		CacheDir:    cfg.CacheDir,
		MaxAge:      cfg.SitesMaxAge,
		Concurrency: cfg.Icons.Concurrency,
		Overlay:     cfg.Icons.Overlay,
		Spec:        JobSpec{Kind: KindSites}.Encode(),
		Logger:      logger,
	})

	rt.App = New(Deps{
		Config:     cfg,
		ConfigPath: configPath,
		Coord:      coord,
		Catalog:    cat,
		Searcher:   client,
		Logger:     logger,
	})
	return rt, nil
}

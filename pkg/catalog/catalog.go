// Package catalog maintains the cached list of Stack Exchange sites and
// their icons.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/sxsearch/pkg/cache"
	"github.com/pario-ai/sxsearch/pkg/cachekey"
	"github.com/pario-ai/sxsearch/pkg/errs"
	"github.com/pario-ai/sxsearch/pkg/icons"
	"github.com/pario-ai/sxsearch/pkg/models"
	"github.com/pario-ai/sxsearch/pkg/refresh"
)

// DefaultMaxAge is how long the site list stays fresh.
const DefaultMaxAge = 24 * time.Hour

// DefaultIconConcurrency bounds parallel icon downloads.
const DefaultIconConcurrency = 8

// ErrNoCatalog is returned by Lookup when no site list is cached yet.
var ErrNoCatalog = errors.New("site catalog not cached")

// Source lists sites and downloads their icons.
type Source interface {
	ListSites(ctx context.Context) ([]models.Site, error)
	FetchIcon(ctx context.Context, url, dest string) error
}

// Options configures a Manager.
type Options struct {
	// CacheDir holds the icons directory.
	CacheDir string
	MaxAge   time.Duration
	// Concurrency bounds parallel icon downloads.
	Concurrency int
	// Overlay is the check-mark image drawn on answered icons. It is
	// rendered on first use when missing.
	Overlay string
	// Spec is handed to out-of-process launchers to rebuild the job.
	Spec   []byte
	Logger *slog.Logger
}

// Manager owns the all-sites cache entry.
type Manager struct {
	coord       *refresh.Coordinator
	source      Source
	compositor  icons.Compositor
	cacheDir    string
	maxAge      time.Duration
	concurrency int
	overlay     string
	spec        []byte
	logger      *slog.Logger
}

// New creates a Manager.
func New(coord *refresh.Coordinator, source Source, compositor icons.Compositor, opts Options) *Manager {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultIconConcurrency
	}
	if opts.Overlay == "" {
		opts.Overlay = filepath.Join(opts.CacheDir, "check-mark.png")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		coord:       coord,
		source:      source,
		compositor:  compositor,
		cacheDir:    opts.CacheDir,
		maxAge:      opts.MaxAge,
		concurrency: opts.Concurrency,
		overlay:     opts.Overlay,
		spec:        opts.Spec,
		logger:      opts.Logger.With(slog.String("component", "catalog")),
	}
}

// Job is the refresh job for the site list: fetch every site, store the
// list, then sync icons.
func (m *Manager) Job() refresh.Job {
	var sites []models.Site
	return refresh.Job{
		Name: cachekey.SitesKey,
		Key:  cachekey.SitesKey,
		Spec: m.spec,
		Produce: func(ctx context.Context) (any, error) {
			var err error
			sites, err = m.source.ListSites(ctx)
			if err != nil {
				return nil, err
			}
			m.logger.Debug("retrieved sites", slog.Int("count", len(sites)))
			return sites, nil
		},
		AfterWrite: func(ctx context.Context) error {
			report := m.SyncIcons(ctx, sites)
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d icons failed", report.Failed, len(report.Results))
			}
			return nil
		},
	}
}

// Load fetches the site list and icons synchronously.
func (m *Manager) Load(ctx context.Context) ([]models.Site, error) {
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	v, err := m.Peek(ctx)
	if err != nil {
		return nil, err
	}
	return v.Data, nil
}

// Refresh runs the site job in the calling goroutine.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.coord.Run(ctx, m.Job())
}

// Peek returns the cached site list without fetching. It returns
// cache.ErrNotFound when nothing is cached.
func (m *Manager) Peek(ctx context.Context) (refresh.Value[[]models.Site], error) {
	return refresh.PeekValue[[]models.Site](ctx, m.coord, cachekey.SitesKey, m.maxAge)
}

// EnsureFresh starts a background refresh when the site list is missing
// or older than its max age. It reports whether a refresh is in flight.
func (m *Manager) EnsureFresh(ctx context.Context) (bool, error) {
	return m.coord.Schedule(ctx, m.maxAge, m.Job())
}

// Refreshing reports whether a site list refresh is in flight.
func (m *Manager) Refreshing() (bool, error) {
	return m.coord.Running(cachekey.SitesKey)
}

// Lookup finds a site by ID in the cached list.
func (m *Manager) Lookup(ctx context.Context, siteID string) (models.Site, error) {
	v, err := m.Peek(ctx)
	if errors.Is(err, cache.ErrNotFound) {
		return models.Site{}, ErrNoCatalog
	}
	if err != nil {
		return models.Site{}, err
	}
	for _, s := range v.Data {
		if s.ID == siteID {
			return s, nil
		}
	}
	return models.Site{}, errs.NotFound("lookup site", siteID)
}

// IconPath returns the cached icon for a site, or "" when it has not been
// downloaded.
func (m *Manager) IconPath(siteID string, answered bool) string {
	p := cachekey.IconPath(m.cacheDir, siteID, answered)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// IconResult is the outcome of syncing one site's icons.
type IconResult struct {
	SiteID     string
	Downloaded bool
	Composed   bool
	Err        error
}

// BatchReport summarises an icon sync.
type BatchReport struct {
	Results    []IconResult
	Downloaded int
	Composed   int
	Failed     int
}

// SyncIcons downloads missing icons and composes their answered variants.
// A failure for one site is logged and never stops the others.
func (m *Manager) SyncIcons(ctx context.Context, sites []models.Site) BatchReport {
	canCompose := true
	if err := icons.EnsureCheckMark(m.overlay, icons.DefaultCheckMarkSize); err != nil {
		m.logger.Error("check mark unavailable", slog.String("error", err.Error()))
		canCompose = false
	}

	results := make([]IconResult, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, s := range sites {
		g.Go(func() error {
			results[i] = m.syncIcon(gctx, s, canCompose)
			return nil
		})
	}
	_ = g.Wait()

	var report BatchReport
	report.Results = results
	for _, r := range results {
		if r.Downloaded {
			report.Downloaded++
		}
		if r.Composed {
			report.Composed++
		}
		if r.Err != nil {
			report.Failed++
			m.logger.Error("failed to cache icon",
				slog.String("site", r.SiteID),
				slog.String("error", r.Err.Error()))
		}
	}
	if report.Downloaded > 0 || report.Failed > 0 {
		m.logger.Info("icons synced",
			slog.Int("downloaded", report.Downloaded),
			slog.Int("composed", report.Composed),
			slog.Int("failed", report.Failed))
	}
	return report
}

func (m *Manager) syncIcon(ctx context.Context, s models.Site, canCompose bool) IconResult {
	res := IconResult{SiteID: s.ID}
	base := cachekey.IconPath(m.cacheDir, s.ID, false)

	exists, err := fileExists(base)
	if err != nil {
		res.Err = err
		return res
	}
	if !exists {
		if s.IconURL == "" {
			res.Err = fmt.Errorf("site %s has no icon url", s.ID)
			return res
		}
		if err := m.source.FetchIcon(ctx, s.IconURL, base); err != nil {
			res.Err = err
			return res
		}
		res.Downloaded = true
	}

	if !canCompose {
		return res
	}
	answered := cachekey.IconPath(m.cacheDir, s.ID, true)
	if exists, err := fileExists(answered); err != nil || exists {
		res.Err = err
		return res
	}
	if err := m.compositor.Overlay(base, m.overlay, answered); err != nil {
		res.Err = err
		return res
	}
	res.Composed = true
	return res
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errs.IO("stat icon", err)
	}
}

// Filter drops meta sites when ignoreMeta is set and keeps sites whose
// name or ID contains every word of query, ignoring case.
func Filter(sites []models.Site, query string, ignoreMeta bool) []models.Site {
	words := strings.Fields(strings.ToLower(query))
	out := make([]models.Site, 0, len(sites))
	for _, s := range sites {
		if ignoreMeta && s.IsMeta {
			continue
		}
		if matches(s, words) {
			out = append(out, s)
		}
	}
	return out
}

func matches(s models.Site, words []string) bool {
	hay := strings.ToLower(s.Name + " " + s.ID)
	for _, w := range words {
		if !strings.Contains(hay, w) {
			return false
		}
	}
	return true
}

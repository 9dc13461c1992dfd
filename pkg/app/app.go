// Package app implements the user-facing operations (search, site listing,
// site catalog caching, default-site selection, icon reveal and the
// background refresh worker) on top of the refresh coordinator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pario-ai/sxsearch/pkg/cache"
	"github.com/pario-ai/sxsearch/pkg/cachekey"
	"github.com/pario-ai/sxsearch/pkg/catalog"
	"github.com/pario-ai/sxsearch/pkg/config"
	"github.com/pario-ai/sxsearch/pkg/errs"
	"github.com/pario-ai/sxsearch/pkg/host"
	"github.com/pario-ai/sxsearch/pkg/models"
	"github.com/pario-ai/sxsearch/pkg/present"
	"github.com/pario-ai/sxsearch/pkg/rank"
	"github.com/pario-ai/sxsearch/pkg/refresh"
)

const (
	rerunCatalog = 0.3
	rerunStale   = 1.0
	rerunLoading = 0.2
)

// Searcher runs a search against the remote API.
type Searcher interface {
	Search(ctx context.Context, p models.SearchParams) ([]models.Answer, error)
}

// Args carries the inputs of an action.
type Args struct {
	Query    string
	SiteID   string
	SiteName string
	Spec     []byte
}

// Output is what an action produced: a result list for interactive
// actions, a one-line message otherwise.
type Output struct {
	Feedback present.Feedback
	Message  string
}

// Deps are the collaborators of an App.
type Deps struct {
	Config     *config.Config
	ConfigPath string
	Coord      *refresh.Coordinator
	Catalog    *catalog.Manager
	Searcher   Searcher
	Opener     host.Opener
	Logger     *slog.Logger
}

// App dispatches actions.
type App struct {
	cfg      *config.Config
	cfgPath  string
	coord    *refresh.Coordinator
	catalog  *catalog.Manager
	searcher Searcher
	opener   host.Opener
	logger   *slog.Logger
}

// New creates an App.
func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Opener == nil {
		d.Opener = host.ExecOpener{}
	}
	return &App{
		cfg:      d.Config,
		cfgPath:  d.ConfigPath,
		coord:    d.Coord,
		catalog:  d.Catalog,
		searcher: d.Searcher,
		opener:   d.Opener,
		logger:   d.Logger,
	}
}

// Dispatch runs action. Interactive actions first make sure a site catalog
// refresh is scheduled when the catalog is missing or stale.
func (a *App) Dispatch(ctx context.Context, action Action, args Args) (Output, error) {
	a.logger.Debug("dispatch", slog.String("action", action.String()))

	switch action {
	case ActionSearch:
		a.ensureCatalog(ctx)
		fb, err := a.Search(ctx, args)
		return Output{Feedback: fb}, err
	case ActionSites:
		a.ensureCatalog(ctx)
		fb, err := a.Sites(ctx, args)
		return Output{Feedback: fb}, err
	case ActionCacheSites:
		msg, err := a.CacheSites(ctx)
		return Output{Message: msg}, err
	case ActionSetDefault:
		msg, err := a.SetDefault(ctx, args)
		return Output{Message: msg}, err
	case ActionRevealIcon:
		msg, err := a.RevealIcon(ctx, args)
		return Output{Message: msg}, err
	case ActionRefresh:
		return Output{}, a.Refresh(ctx, args.Spec)
	default:
		return Output{}, fmt.Errorf("unknown action %v", action)
	}
}

func (a *App) ensureCatalog(ctx context.Context) {
	if _, err := a.catalog.EnsureFresh(ctx); err != nil {
		a.logger.Warn("schedule site catalog refresh failed", slog.String("error", err.Error()))
	}
}

func (a *App) catalogRefreshing() bool {
	running, err := a.catalog.Refreshing()
	if err != nil {
		a.logger.Warn("check site catalog refresh failed", slog.String("error", err.Error()))
		return false
	}
	return running
}

// Search returns ranked answers for args.Query on args.SiteID (or the
// default site).
func (a *App) Search(ctx context.Context, args Args) (present.Feedback, error) {
	var fb present.Feedback
	if a.catalogRefreshing() {
		fb.SetRerun(rerunCatalog)
	}

	siteID := args.SiteID
	if siteID == "" {
		siteID = a.cfg.SiteID
	}
	if _, err := a.catalog.Lookup(ctx, siteID); err != nil && !errors.Is(err, catalog.ErrNoCatalog) {
		return fb, err
	}

	q := cachekey.ParseQuery(args.Query)
	a.logger.Debug("search", slog.String("site", siteID), slog.String("query", q.Text), slog.Any("tags", q.Tags))

	v, err := refresh.Fetch[[]models.Answer](ctx, a.coord, a.cfg.CacheMaxAge, a.searchJob(siteID, q, a.cfg.ResultCount))
	if err != nil {
		return fb, err
	}
	if v.Refreshing {
		fb.SetRerun(rerunStale)
	}
	a.logger.Info("answers", slog.Int("count", len(v.Data)), slog.String("state", v.State.String()))

	for _, ans := range rank.Rank(v.Data) {
		it := present.Item{
			UID:      ans.Link,
			Title:    ans.Title,
			Subtitle: strings.Join(ans.Tags, ", "),
			Arg:      ans.Link,
			Valid:    true,
			Text:     &present.Text{Copy: ans.Link, LargeType: ans.Title},
		}
		if p := a.catalog.IconPath(siteID, ans.Answered); p != "" {
			it.Icon = &present.Icon{Path: p}
		} else if p := a.catalog.IconPath(siteID, false); p != "" {
			it.Icon = &present.Icon{Path: p}
		}
		fb.Add(it)
	}
	fb.WarnEmpty("No Answers Found", "Try a different query")
	return fb, nil
}

func (a *App) searchJob(siteID string, q cachekey.Query, limit int) refresh.Job {
	key := cachekey.Derive(siteID, q.Text, q.Tags)
	spec := JobSpec{Kind: KindSearch, Site: siteID, Text: q.Text, Tags: q.Tags, Limit: limit}
	return refresh.Job{
		Key:  key,
		Spec: spec.Encode(),
		Produce: func(ctx context.Context) (any, error) {
			return a.searcher.Search(ctx, models.SearchParams{
				Site:  siteID,
				Query: q.Text,
				Tags:  q.Tags,
				Limit: limit,
			})
		},
	}
}

// Sites lists the cached sites matching args.Query. While the catalog has
// never been fetched it shows a placeholder and asks to be rerun.
func (a *App) Sites(ctx context.Context, args Args) (present.Feedback, error) {
	var fb present.Feedback

	v, err := a.catalog.Peek(ctx)
	if errors.Is(err, cache.ErrNotFound) {
		fb.Add(present.Placeholder("Updating List of Sites…", "Please wait a few moments"))
		fb.SetRerun(rerunLoading)
		return fb, nil
	}
	if err != nil {
		return fb, err
	}
	if a.catalogRefreshing() {
		fb.SetRerun(rerunCatalog)
	}

	for _, s := range catalog.Filter(v.Data, args.Query, a.cfg.IgnoreMetaSites) {
		fb.Add(a.siteItem(s))
	}
	fb.WarnEmpty("No Matching Sites", "Try a different query")
	return fb, nil
}

func (a *App) siteItem(s models.Site) present.Item {
	it := present.Item{
		UID:      s.ID,
		Title:    s.Name,
		Subtitle: s.Audience,
		Arg:      s.ID,
		Valid:    true,
		Text:     &present.Text{Copy: s.ID},
	}
	if p := a.catalog.IconPath(s.ID, false); p != "" {
		it.Icon = &present.Icon{Path: p}
	}

	isMeta := "0"
	if s.IsMeta {
		isMeta = "1"
	}
	vars := map[string]string{
		"site_id":       s.ID,
		"site_name":     s.Name,
		"site_audience": s.Audience,
		"site_icon":     s.IconURL,
		"site_is_meta":  isMeta,
	}
	for k, v := range vars {
		it.SetVar(k, v)
	}

	it.AddMod("cmd", present.Mod{
		Subtitle: "Set as default site",
		Arg:      s.ID,
		Valid:    true,
		Vars:     withAction(vars, ActionSetDefault),
	})
	it.AddMod("alt", present.Mod{
		Subtitle: "Reveal icon in file manager",
		Arg:      s.ID,
		Valid:    true,
		Vars:     withAction(vars, ActionRevealIcon),
	})
	return it
}

func withAction(vars map[string]string, action Action) map[string]string {
	out := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	out["action"] = action.String()
	return out
}

// CacheSites fetches the site list and icons, blocking until done.
func (a *App) CacheSites(ctx context.Context) (string, error) {
	sites, err := a.catalog.Load(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Cached %d sites", len(sites)), nil
}

// SetDefault persists args.SiteID as the default site.
func (a *App) SetDefault(ctx context.Context, args Args) (string, error) {
	if args.SiteID == "" {
		return "", errors.New("set-default: no site given")
	}

	name := args.SiteName
	site, err := a.catalog.Lookup(ctx, args.SiteID)
	switch {
	case err == nil:
		name = site.Name
	case errors.Is(err, catalog.ErrNoCatalog):
	default:
		return "", err
	}
	if name == "" {
		name = args.SiteID
	}

	if err := config.SetSite(a.cfgPath, args.SiteID, name); err != nil {
		return "", err
	}
	a.cfg.SiteID, a.cfg.SiteName = args.SiteID, name

	a.logger.Info("default site changed", slog.String("site", args.SiteID))
	return fmt.Sprintf("Default site changed to “%s”", name), nil
}

// RevealIcon shows the cached icon of args.SiteID in the file manager.
func (a *App) RevealIcon(_ context.Context, args Args) (string, error) {
	if args.SiteID == "" {
		return "", errors.New("reveal-icon: no site given")
	}
	path := cachekey.IconPath(a.cfg.CacheDir, args.SiteID, false)
	if err := host.Reveal(a.opener, path); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", fmt.Errorf("icon for %s has not been downloaded: %w", args.SiteID, err)
		}
		return "", fmt.Errorf("reveal icon for %s: %w", args.SiteID, err)
	}
	return path, nil
}

// Refresh is the background worker body: it rebuilds the job described by
// spec, runs it and releases its claim.
func (a *App) Refresh(ctx context.Context, spec []byte) error {
	job, err := a.JobFromSpec(spec)
	if err != nil {
		return err
	}
	return a.coord.RunClaimed(ctx, job)
}

// JobFromSpec rebuilds a refresh job from its encoded spec.
func (a *App) JobFromSpec(data []byte) (refresh.Job, error) {
	spec, err := DecodeJobSpec(data)
	if err != nil {
		return refresh.Job{}, err
	}
	if spec.Kind == KindSites {
		return a.catalog.Job(), nil
	}
	limit := spec.Limit
	if limit <= 0 {
		limit = a.cfg.ResultCount
	}
	return a.searchJob(spec.Site, cachekey.Query{Text: spec.Text, Tags: spec.Tags}, limit), nil
}

// Package stackexchange is a thin client for the Stack Exchange API: search
// a site, list every site, and download site icons.
package stackexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pario-ai/sxsearch/pkg/errs"
	"github.com/pario-ai/sxsearch/pkg/models"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.stackexchange.com/2.3"

const (
	searchPath = "/search/advanced"
	sitesPath  = "/sites"

	sitesPageSize = 100
)

// QuotaRecorder receives the quota figures of every successful API call.
type QuotaRecorder interface {
	Record(ctx context.Context, rec models.QuotaRecord) error
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Key       string
	ClientID  string
	UserAgent string
	Timeout   time.Duration
	RetryMax  int
	Quota     QuotaRecorder
	Logger    *slog.Logger
}

// Client talks to the Stack Exchange API.
type Client struct {
	baseURL   string
	key       string
	clientID  string
	userAgent string
	http      *retryablehttp.Client
	quota     QuotaRecorder
	logger    *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := retryablehttp.NewClient()
	r.RetryMax = opts.RetryMax
	r.RetryWaitMin = 200 * time.Millisecond
	r.RetryWaitMax = 2 * time.Second
	r.HTTPClient.Timeout = opts.Timeout
	r.Logger = opts.Logger
	r.CheckRetry = checkRetry
	r.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		key:       opts.Key,
		clientID:  opts.ClientID,
		userAgent: opts.UserAgent,
		http:      r,
		quota:     opts.Quota,
		logger:    opts.Logger,
	}
}

// checkRetry never retries client errors: a 400 or 429 from this API is a
// bad request or a throttle/quota violation and repeating it only burns quota.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// envelope is the common response wrapper.
type envelope[T any] struct {
	Items          []T    `json:"items"`
	HasMore        bool   `json:"has_more"`
	QuotaMax       int    `json:"quota_max"`
	QuotaRemaining int    `json:"quota_remaining"`
	Backoff        int    `json:"backoff"`
	ErrorID        int    `json:"error_id"`
	ErrorName      string `json:"error_name"`
	ErrorMessage   string `json:"error_message"`
}

type apiSite struct {
	APISiteParameter string `json:"api_site_parameter"`
	Name             string `json:"name"`
	Audience         string `json:"audience"`
	IconURL          string `json:"icon_url"`
	SiteType         string `json:"site_type"`
	SiteState        string `json:"site_state"`
}

type apiQuestion struct {
	Title      string   `json:"title"`
	Link       string   `json:"link"`
	Tags       []string `json:"tags"`
	IsAnswered bool     `json:"is_answered"`
}

// Search runs an advanced search and returns answers in the API's
// relevance order.
func (c *Client) Search(ctx context.Context, p models.SearchParams) ([]models.Answer, error) {
	params := url.Values{}
	params.Set("page", "1")
	params.Set("pagesize", strconv.Itoa(p.Limit))
	params.Set("order", "desc")
	params.Set("sort", "relevance")
	params.Set("site", p.Site)
	if p.Query != "" {
		params.Set("q", p.Query)
	}
	if len(p.Tags) > 0 {
		params.Set("tagged", strings.Join(p.Tags, ";"))
	}

	var env envelope[apiQuestion]
	if err := call(ctx, c, searchPath, p.Site, params, &env); err != nil {
		return nil, err
	}

	answers := make([]models.Answer, 0, len(env.Items))
	for _, q := range env.Items {
		tags := make([]string, len(q.Tags))
		for i, t := range q.Tags {
			tags[i] = html.UnescapeString(t)
		}
		answers = append(answers, models.Answer{
			Title:    html.UnescapeString(q.Title),
			Link:     html.UnescapeString(q.Link),
			Tags:     tags,
			Answered: q.IsAnswered,
		})
	}
	return answers, nil
}

// ListSites pages through every site, skipping sites in closed beta. It
// stops when the API reports no further pages.
func (c *Client) ListSites(ctx context.Context) ([]models.Site, error) {
	var sites []models.Site
	for page := 1; ; page++ {
		c.logger.Debug("fetching sites page", slog.Int("page", page))

		params := url.Values{}
		params.Set("pagesize", strconv.Itoa(sitesPageSize))
		params.Set("page", strconv.Itoa(page))

		var env envelope[apiSite]
		if err := call(ctx, c, sitesPath, "", params, &env); err != nil {
			return nil, err
		}

		for _, s := range env.Items {
			if s.SiteState == "closed_beta" {
				c.logger.Debug("ignoring closed beta site", slog.String("site", s.APISiteParameter))
				continue
			}
			sites = append(sites, models.Site{
				ID:       html.UnescapeString(s.APISiteParameter),
				Name:     html.UnescapeString(s.Name),
				Audience: html.UnescapeString(s.Audience),
				IconURL:  s.IconURL,
				IsMeta:   s.SiteType == "meta_site",
			})
		}

		if !env.HasMore {
			return sites, nil
		}
		if len(env.Items) == 0 {
			return nil, &errs.APIError{
				StatusCode: http.StatusOK,
				Name:       "invalid_response",
				Message:    fmt.Sprintf("sites page %d is empty but has_more is set", page),
			}
		}
	}
}

// FetchIcon downloads rawURL to dest. The file appears atomically.
func (c *Client) FetchIcon(ctx context.Context, rawURL, dest string) error {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return errs.Network("fetch icon", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &errs.APIError{StatusCode: resp.StatusCode, Message: "icon download " + rawURL}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errs.IO("create icon dir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".icon-*")
	if err != nil {
		return errs.IO("create icon file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errs.Network("read icon", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.IO("write icon", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errs.IO("save icon", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req)
}

// call invokes an API endpoint and decodes the envelope into out.
func call[T any](ctx context.Context, c *Client, path, site string, params url.Values, out *envelope[T]) error {
	if c.key != "" {
		params.Set("key", c.key)
	}
	if c.clientID != "" {
		params.Set("client_id", c.clientID)
	}
	u := c.baseURL + path + "?" + params.Encode()

	resp, err := c.do(ctx, u)
	if err != nil {
		return errs.Network(path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Network(path, err)
	}
	c.logger.Debug("api call", slog.Int("status", resp.StatusCode), slog.String("path", path), slog.String("site", site))

	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode/100 != 2 {
			return &errs.APIError{StatusCode: resp.StatusCode}
		}
		return &errs.APIError{StatusCode: resp.StatusCode, Name: "invalid_response", Message: err.Error()}
	}
	if resp.StatusCode/100 != 2 || out.ErrorID != 0 {
		return &errs.APIError{
			StatusCode: resp.StatusCode,
			ID:         out.ErrorID,
			Name:       out.ErrorName,
			Message:    out.ErrorMessage,
		}
	}

	c.recordQuota(ctx, path, site, out.QuotaRemaining, out.QuotaMax, out.Backoff)
	return nil
}

func (c *Client) recordQuota(ctx context.Context, path, site string, remaining, quotaMax, backoff int) {
	if quotaMax > 0 {
		c.logger.Info(fmt.Sprintf("%d/%d API requests remaining", remaining, quotaMax))
	}
	if backoff > 0 {
		c.logger.Warn("api requested backoff", slog.Int("seconds", backoff), slog.String("path", path))
	}
	if c.quota == nil {
		return
	}
	rec := models.QuotaRecord{
		Endpoint:  path,
		Site:      site,
		Remaining: remaining,
		Max:       quotaMax,
		Backoff:   backoff,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.quota.Record(ctx, rec); err != nil {
		c.logger.Warn("record quota failed", slog.String("error", err.Error()))
	}
}

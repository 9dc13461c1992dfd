package stackexchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/sxsearch/pkg/errs"
	"github.com/pario-ai/sxsearch/pkg/models"
)

type quotaSink struct {
	mu   sync.Mutex
	recs []models.QuotaRecord
}

func (q *quotaSink) Record(_ context.Context, rec models.QuotaRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = append(q.recs, rec)
	return nil
}

func newTestClient(t *testing.T, h http.Handler, quota QuotaRecorder) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:   srv.URL,
		Key:       "k3y",
		UserAgent: "sxsearch-test",
		Quota:     quota,
	})
}

func TestSearch(t *testing.T) {
	quota := &quotaSink{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/advanced", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "50", q.Get("pagesize"))
		assert.Equal(t, "desc", q.Get("order"))
		assert.Equal(t, "relevance", q.Get("sort"))
		assert.Equal(t, "stackoverflow", q.Get("site"))
		assert.Equal(t, "foo bar", q.Get("q"))
		assert.Equal(t, "python;macos", q.Get("tagged"))
		assert.Equal(t, "k3y", q.Get("key"))
		assert.Equal(t, "sxsearch-test", r.Header.Get("User-Agent"))

		fmt.Fprint(w, `{"items":[
			{"title":"Why &quot;foo&quot; &amp; bar?","link":"https://so.com/q/1","tags":["python","c&#43;&#43;"],"is_answered":true},
			{"title":"Plain","link":"https://so.com/q/2","tags":[],"is_answered":false}
		],"has_more":true,"quota_max":300,"quota_remaining":297}`)
	}), quota)

	answers, err := c.Search(context.Background(), models.SearchParams{
		Site:  "stackoverflow",
		Query: "foo bar",
		Tags:  []string{"python", "macos"},
		Limit: 50,
	})
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, `Why "foo" & bar?`, answers[0].Title)
	assert.Equal(t, []string{"python", "c++"}, answers[0].Tags)
	assert.True(t, answers[0].Answered)
	assert.Equal(t, "https://so.com/q/2", answers[1].Link)
	assert.False(t, answers[1].Answered)

	require.Len(t, quota.recs, 1)
	assert.Equal(t, "/search/advanced", quota.recs[0].Endpoint)
	assert.Equal(t, "stackoverflow", quota.recs[0].Site)
	assert.Equal(t, 297, quota.recs[0].Remaining)
	assert.Equal(t, 300, quota.recs[0].Max)
}

func TestSearchOmitsEmptyQueryAndTags(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("q"))
		assert.False(t, q.Has("tagged"))
		fmt.Fprint(w, `{"items":[]}`)
	}), nil)

	answers, err := c.Search(context.Background(), models.SearchParams{Site: "superuser", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestListSitesPagesAndFilters(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("pagesize"))
		page := r.URL.Query().Get("page")
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
		switch page {
		case "1":
			fmt.Fprint(w, `{"items":[
				{"api_site_parameter":"stackoverflow","name":"Stack Overflow","audience":"professional &amp; enthusiast programmers","icon_url":"https://x/so.png","site_type":"main_site","site_state":"normal"},
				{"api_site_parameter":"newthing","name":"New Thing","site_type":"main_site","site_state":"closed_beta"}
			],"has_more":true}`)
		default:
			fmt.Fprint(w, `{"items":[
				{"api_site_parameter":"meta.stackoverflow","name":"Meta Stack Overflow","site_type":"meta_site","site_state":"normal"}
			],"has_more":false}`)
		}
	}), nil)

	sites, err := c.ListSites(context.Background())
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []string{"1", "2"}, pages)
	mu.Unlock()
	require.Len(t, sites, 2)

	assert.Equal(t, "stackoverflow", sites[0].ID)
	assert.Equal(t, "professional & enthusiast programmers", sites[0].Audience)
	assert.Equal(t, "https://x/so.png", sites[0].IconURL)
	assert.False(t, sites[0].IsMeta)

	assert.Equal(t, "meta.stackoverflow", sites[1].ID)
	assert.True(t, sites[1].IsMeta)
}

func TestListSitesPagesUntilExhausted(t *testing.T) {
	const last = 60
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		fmt.Fprintf(w, `{"items":[{"api_site_parameter":"site%d","name":"Site %d","site_state":"normal"}],"has_more":%t}`,
			page, page, page < last)
	}), nil)

	sites, err := c.ListSites(context.Background())
	require.NoError(t, err)
	assert.Len(t, sites, last)
	assert.Equal(t, int32(last), calls.Load())
	assert.Equal(t, "site60", sites[last-1].ID)
}

func TestListSitesEmptyPageWithMore(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[],"has_more":true}`)
	}), nil)

	_, err := c.ListSites(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAPI))
}

func TestAPIErrorEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error_id":502,"error_name":"throttle_violation","error_message":"too many requests from this IP"}`)
	}), nil)

	_, err := c.Search(context.Background(), models.SearchParams{Site: "stackoverflow", Query: "x", Limit: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAPI))

	var apiErr *errs.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "throttle_violation", apiErr.Name)
	assert.True(t, apiErr.QuotaExhausted())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := New(Options{BaseURL: srv.URL, RetryMax: 3})
	_, err := c.ListSites(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAPI))
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"items":[],"has_more":false}`)
	}))
	t.Cleanup(srv.Close)

	c := New(Options{BaseURL: srv.URL, RetryMax: 2})
	c.http.RetryWaitMin = 0
	c.http.RetryWaitMax = 0

	_, err := c.ListSites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url})
	_, err := c.Search(context.Background(), models.SearchParams{Site: "stackoverflow", Limit: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNetwork))
}

func TestMalformedResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	}), nil)

	_, err := c.Search(context.Background(), models.SearchParams{Site: "stackoverflow", Limit: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAPI))
}

func TestFetchIcon(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "PNGDATA")
	}), nil)

	dest := filepath.Join(t.TempDir(), "icons", "stackoverflow.png")
	require.NoError(t, c.FetchIcon(context.Background(), c.baseURL+"/so.png", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))

	missing := filepath.Join(filepath.Dir(dest), "missing.png")
	err = c.FetchIcon(context.Background(), c.baseURL+"/missing.png", missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAPI))
	assert.NoFileExists(t, missing)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

package quota

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/sxsearch/pkg/models"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "quota.db")
	l, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndLatest(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	latest, err := l.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatalf("expected empty ledger, got %+v", latest)
	}

	for i := range 3 {
		err := l.Record(ctx, models.QuotaRecord{
			Endpoint:  "/search/advanced",
			Site:      "stackoverflow",
			Remaining: 300 - i,
			Max:       300,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	latest, err = l.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil {
		t.Fatal("expected a record")
	}
	if latest.Remaining != 298 {
		t.Errorf("expected 298 remaining, got %d", latest.Remaining)
	}
	if latest.Site != "stackoverflow" {
		t.Errorf("expected site stackoverflow, got %q", latest.Site)
	}
	if !latest.CreatedAt.Equal(now.Add(2 * time.Second)) {
		t.Errorf("unexpected created_at %v", latest.CreatedAt)
	}
}

func TestSummary(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	records := []models.QuotaRecord{
		{Endpoint: "/search/advanced", Remaining: 290, Max: 300, CreatedAt: day1},
		{Endpoint: "/search/advanced", Remaining: 280, Max: 300, CreatedAt: day1.Add(time.Hour)},
		{Endpoint: "/sites", Remaining: 279, Max: 300, CreatedAt: day1.Add(2 * time.Hour)},
		{Endpoint: "/search/advanced", Remaining: 299, Max: 300, CreatedAt: day2},
	}
	for _, r := range records {
		if err := l.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	summaries, err := l.Summary(ctx, day1.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}

	first := summaries[0]
	if first.Day != "2026-03-02" || first.Endpoint != "/search/advanced" || first.Requests != 1 {
		t.Errorf("unexpected first summary %+v", first)
	}
	second := summaries[1]
	if second.Day != "2026-03-01" || second.Endpoint != "/search/advanced" {
		t.Errorf("unexpected second summary %+v", second)
	}
	if second.Requests != 2 || second.MinRemaining != 280 {
		t.Errorf("expected 2 requests with min 280, got %+v", second)
	}

	recent, err := l.Summary(ctx, day2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("expected 1 summary since day2, got %d", len(recent))
	}
}

func TestCleanup(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = l.Record(ctx, models.QuotaRecord{Endpoint: "/sites", Remaining: 1, Max: 300, CreatedAt: now.Add(-48 * time.Hour)})
	_ = l.Record(ctx, models.QuotaRecord{Endpoint: "/sites", Remaining: 2, Max: 300, CreatedAt: now})

	n, err := l.Cleanup(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	latest, err := l.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Remaining != 2 {
		t.Errorf("expected newest record to survive, got %+v", latest)
	}
}

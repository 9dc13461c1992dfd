package present

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/sxsearch/pkg/models"
)

// FormatStats formats cache statistics.
func FormatStats(s models.CacheStats, backend string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backend: %s\n", backend)
	fmt.Fprintf(&b, "Entries: %d\n", s.Entries)
	fmt.Fprintf(&b, "Hits:    %d\n", s.Hits)
	fmt.Fprintf(&b, "Misses:  %d\n", s.Misses)
	return b.String()
}

// FormatJobs formats running background jobs as a text table.
func FormatJobs(markers []models.JobMarker, now time.Time) string {
	if len(markers) == 0 {
		return "No background jobs running."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-50s %8s %-20s %10s\n", "Job", "PID", "Started", "Running")
	b.WriteString(strings.Repeat("-", 91) + "\n")
	for _, m := range markers {
		name := m.Name
		if len(name) > 50 {
			name = name[:23] + "..." + name[len(name)-24:]
		}
		fmt.Fprintf(&b, "%-50s %8d %-20s %10s\n",
			name, m.PID,
			m.StartedAt.Local().Format("2006-01-02 15:04:05"),
			now.Sub(m.StartedAt).Round(time.Second))
	}
	return b.String()
}

// FormatQuota formats the latest quota figures and per-day API usage.
func FormatQuota(latest *models.QuotaRecord, rows []models.QuotaSummary) string {
	if latest == nil {
		return "No API calls recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d API requests remaining (as of %s)\n\n",
		latest.Remaining, latest.Max, latest.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if len(rows) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "%-12s %-20s %8s %14s\n", "Day", "Endpoint", "Requests", "Min Remaining")
	b.WriteString(strings.Repeat("-", 57) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-20s %8d %14d\n", r.Day, r.Endpoint, r.Requests, r.MinRemaining)
	}
	return b.String()
}

package web

import (
	"net/http"
	"sort"
	"time"

	"messageboard/internal/adapters/http/perf"
	"messageboard/internal/application/querycache"
)

// perfWindow is how far back /debug/perf aggregates.
const perfWindow = 15 * time.Minute

type perfPage struct {
	Window   time.Duration
	Snapshot perf.Snapshot
	Entries  []querycache.EntryStats
	Sessions int
	Pending  []string
}

// handleDebugPerf handles GET /debug/perf: request, query and remote-call
// timings, writes in flight and the live cache entries.
func handleDebugPerf(w http.ResponseWriter, r *http.Request) {
	page := perfPage{Window: perfWindow, Sessions: deps.Sessions.Len(), Pending: deps.Mutations.PendingWrites()}
	if deps.Collector != nil {
		page.Snapshot = deps.Collector.Snapshot(timeNow().Add(-perfWindow), 10)
	}
	page.Entries = deps.Cache.Stats()
	sort.Slice(page.Entries, func(i, j int) bool { return page.Entries[i].Key < page.Entries[j].Key })
	renderTemplate(w, r, http.StatusOK, "debug_perf.html", page)
}

// handleNotFound renders the 404 page for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, r, http.StatusNotFound, "not_found.html", nil)
}

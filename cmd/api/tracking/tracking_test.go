package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/mark3748/sla-notifier/cmd/api/app"
	"github.com/mark3748/sla-notifier/internal/calendar"
	"github.com/mark3748/sla-notifier/internal/config"
	"github.com/mark3748/sla-notifier/internal/sla"
	"github.com/mark3748/sla-notifier/internal/store"
)

func tp(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func newTestApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	records, err := store.NewFileRecords(dir)
	if err != nil {
		t.Fatal(err)
	}
	assignments, err := store.NewFileAssignments(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, r := range []sla.Record{
		{TicketID: "1", SLAStatus: sla.StatusActive, SLAType: sla.BucketFRT, AssignedAt: tp("2024-07-01T09:00:00Z"), Deadline: tp("2024-07-01T09:05:00Z"), AssigneeName: "Ann", AssigneeEmail: "ann@example.com"},
		{TicketID: "2", SLAStatus: sla.StatusHit, SLAType: sla.BucketTTC, AssignedAt: tp("2024-07-02T09:00:00Z"), HitAt: tp("2024-07-02T10:00:00Z"), AssigneeEmail: "bo@example.com"},
		{TicketID: "3", SLAStatus: sla.StatusMissed, SLAType: sla.BucketNRT, AssignedAt: tp("2024-07-03T09:00:00Z")},
	} {
		if err := records.Put(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	_ = assignments.Put(ctx, sla.AssignmentRecord{TicketID: "1", AssigneeEmail: "ann@example.com", AssignedAt: *tp("2024-07-01T09:00:00Z")})
	_ = assignments.Put(ctx, sla.AssignmentRecord{TicketID: "9", AssigneeEmail: "ann@example.com", AssignedAt: *tp("2024-07-04T09:00:00Z")})

	start, _ := calendar.ParseClock("09:00")
	end, _ := calendar.ParseClock("17:00")
	res := calendar.NewResolver(calendar.Calendar{
		Enabled: true, Start: start, End: end, Timezone: "UTC",
		Days: map[time.Weekday]bool{time.Monday: true, time.Friday: true},
	}, nil)

	a := app.NewApp(cfg, sla.NewReporter(records, assignments), res, nil, nil, nil)
	a.R.GET("/sla/tickets", ListTickets(a))
	a.R.GET("/sla/tickets/:id", GetTicket(a))
	a.R.GET("/sla/stats", Stats(a))
	a.R.GET("/sla/assignments", Assignments(a))
	a.R.GET("/sla/business-hours", BusinessHours(a))
	return a
}

func get(a *app.App, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestListTicketsFilters(t *testing.T) {
	a := newTestApp(t, config.Config{Env: "test"})
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"1", "2", "3"}},
		{"status", "?status=HIT", []string{"2"}},
		{"agent", "?agent=ann@example.com", []string{"1"}},
		{"unattributed", "?agent=unattributed", []string{"3"}},
		{"date range", "?from=2024-07-02&to=2024-07-03", []string{"2", "3"}},
		{"rfc3339", "?from=2024-07-02T09:00:01Z", []string{"3"}},
		{"sla type", "?sla_type=ttc", []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(a, "/sla/tickets"+tt.query)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			var recs []sla.Record
			if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if len(recs) != len(tt.want) {
				t.Fatalf("got %d records, want %v", len(recs), tt.want)
			}
			for i, id := range tt.want {
				if recs[i].TicketID != id {
					t.Fatalf("record %d = %s, want %s", i, recs[i].TicketID, id)
				}
			}
		})
	}
}

func TestListTicketsBadFilter(t *testing.T) {
	a := newTestApp(t, config.Config{Env: "test"})
	for _, q := range []string{"?from=yesterday", "?status=late", "?sla_type=xyz", "?from=2024-07-03&to=2024-07-01"} {
		if rr := get(a, "/sla/tickets"+q); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestGetTicket(t *testing.T) {
	a := newTestApp(t, config.Config{Env: "test"})
	if rr := get(a, "/sla/tickets/1"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := get(a, "/sla/tickets/404"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestStatsCached(t *testing.T) {
	a := newTestApp(t, config.Config{Env: "test", StatsCacheTTL: time.Minute})
	rr := get(a, "/sla/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var st sla.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if st.Total != 3 || st.Hit != 1 || st.Missed != 1 || st.Active != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if rr.Header().Get("X-Cache") != "" {
		t.Fatalf("first response should not be a cache hit")
	}
	if rr := get(a, "/sla/stats"); rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second response should be cached")
	}
	if rr := get(a, "/sla/stats?status=hit"); rr.Header().Get("X-Cache") != "" {
		t.Fatalf("different query must not share the cache entry")
	}
}

func TestStatsUncachedWhenTTLZero(t *testing.T) {
	a := newTestApp(t, config.Config{Env: "test"})
	get(a, "/sla/stats")
	if rr := get(a, "/sla/stats"); rr.Header().Get("X-Cache") != "" {
		t.Fatalf("cache should be disabled")
	}
}

func TestAssignmentsNewestFirst(t *testing.T) {
	a := newTestApp(t, config.Config{Env: "test"})
	rr := get(a, "/sla/assignments?agent=ann@example.com")
	var recs []sla.AssignmentRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].TicketID != "9" {
		t.Fatalf("unexpected %+v", recs)
	}
}

func TestBusinessHours(t *testing.T) {
	a := newTestApp(t, config.Config{Env: "test"})
	rr := get(a, "/sla/business-hours")
	var v struct {
		Enabled  bool     `json:"enabled"`
		Start    string   `json:"start"`
		Days     []string `json:"days"`
		Timezone string   `json:"timezone"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if !v.Enabled || v.Start != "09:00" || v.Timezone != "UTC" || len(v.Days) != 2 || v.Days[0] != "Monday" {
		t.Fatalf("unexpected %+v", v)
	}
}

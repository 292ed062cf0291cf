package tracking

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/mark3748/sla-notifier/cmd/api/app"
	"github.com/mark3748/sla-notifier/internal/sla"
)

const dateLayout = "2006-01-02"

// ParseFilter reads from, to, agent, status and sla_type query parameters.
// from and to accept RFC 3339 instants or plain dates; a plain to date
// covers the whole day.
func ParseFilter(c *gin.Context) (sla.Filter, map[string]string) {
	var f sla.Filter
	bad := map[string]string{}
	if v := c.Query("from"); v != "" {
		t, err := parseBound(v, false)
		if err != nil {
			bad["from"] = "must be RFC3339 or YYYY-MM-DD"
		} else {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		t, err := parseBound(v, true)
		if err != nil {
			bad["to"] = "must be RFC3339 or YYYY-MM-DD"
		} else {
			f.To = &t
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		bad["to"] = "must not be before from"
	}
	f.Agent = strings.TrimSpace(c.Query("agent"))
	if v := c.Query("status"); v != "" {
		switch s := sla.ParseStatus(v); s {
		case sla.StatusActive, sla.StatusMissed, sla.StatusHit:
			f.Status = s
		default:
			bad["status"] = "must be one of active, missed, hit"
		}
	}
	if v := c.Query("sla_type"); v != "" {
		b := sla.Bucket(strings.ToUpper(v))
		if strings.EqualFold(v, string(sla.BucketUnclassified)) {
			b = sla.BucketUnclassified
		}
		if _, known := sla.DefaultDurations[b]; !known && b != sla.BucketUnclassified {
			bad["sla_type"] = "must be one of FRT, NRT, TTC, unclassified"
		} else {
			f.SLAType = b
		}
	}
	if len(bad) == 0 {
		bad = nil
	}
	return f, bad
}

func parseBound(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// ListTickets returns the tracked SLA records matching the query filter.
func ListTickets(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, bad := ParseFilter(c)
		if bad != nil {
			app.BadRequest(c, bad)
			return
		}
		recs, err := a.Reporter.GetAllTrackedTickets(c.Request.Context(), f)
		if err != nil {
			app.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, recs)
	}
}

// GetTicket returns one tracked record.
func GetTicket(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := a.Reporter.GetTrackedTicket(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sla.ErrNotFound) {
			app.AbortError(c, http.StatusNotFound, "not_found", "ticket is not tracked", nil)
			return
		}
		if err != nil {
			app.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// Stats returns the compliance summary. Responses are cached per query for
// StatsCacheTTL.
func Stats(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, bad := ParseFilter(c)
		if bad != nil {
			app.BadRequest(c, bad)
			return
		}
		ttl := a.Cfg.StatsCacheTTL
		key := "stats?" + c.Request.URL.RawQuery
		if ttl > 0 {
			if v, ok := a.Cache.Get(key); ok {
				c.Header("X-Cache", "HIT")
				c.JSON(http.StatusOK, v)
				return
			}
		}
		st, err := a.Reporter.GetStats(c.Request.Context(), f)
		if err != nil {
			app.Internal(c, err)
			return
		}
		if ttl > 0 {
			a.Cache.Set(key, st, ttl)
		}
		c.JSON(http.StatusOK, st)
	}
}

// Assignments returns assignment records matching the query filter.
func Assignments(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, bad := ParseFilter(c)
		if bad != nil {
			app.BadRequest(c, bad)
			return
		}
		recs, err := a.Reporter.GetAssignments(c.Request.Context(), f)
		if err != nil {
			app.Internal(c, err)
			return
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].AssignedAt.After(recs[j].AssignedAt) })
		c.JSON(http.StatusOK, recs)
	}
}

type businessHoursView struct {
	Enabled         bool      `json:"enabled"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	Timezone        string    `json:"timezone"`
	Days            []string  `json:"days"`
	IsBusinessHours bool      `json:"isBusinessHours"`
	NextStart       time.Time `json:"nextStart"`
}

// BusinessHours reports the calendar and whether it is open now.
func BusinessHours(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cal := a.Resolver.Calendar()
		now := time.Now()
		v := businessHoursView{
			Enabled:         cal.Enabled,
			Start:           cal.Start.String(),
			End:             cal.End.String(),
			Timezone:        cal.Timezone,
			Days:            []string{},
			IsBusinessHours: a.Resolver.IsBusinessHours(now),
			NextStart:       a.Resolver.NextBusinessHoursStart(now),
		}
		for d := time.Sunday; d <= time.Saturday; d++ {
			if cal.Days[d] {
				v.Days = append(v.Days, d.String())
			}
		}
		c.JSON(http.StatusOK, v)
	}
}

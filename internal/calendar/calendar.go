// Package calendar decides whether an instant falls inside configured
// business hours and when business hours next begin. All zone handling goes
// through a Renderer; the package never does offset arithmetic of its own
// beyond the candidate search in invert.go.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// maxScanDays bounds the forward search for the next business day.
	maxScanDays = 14
	// fallbackWait is returned from NextBusinessHoursStart when no start
	// instant can be resolved.
	fallbackWait = 24 * time.Hour
)

// Calendar is the civil business calendar. It is immutable for the lifetime
// of a process.
type Calendar struct {
	Enabled  bool
	Start    Clock
	End      Clock
	Timezone string
	Days     map[time.Weekday]bool
}

// Validate checks the calendar invariants. A disabled calendar is always valid.
func (c Calendar) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Timezone == "" {
		return errors.New("business hours timezone is required")
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("business hours start %s must be before end %s", c.Start, c.End)
	}
	if len(c.Days) == 0 {
		return errors.New("at least one business day is required")
	}
	return nil
}

// Resolver answers business-hours questions for one Calendar.
type Resolver struct {
	cal    Calendar
	render Renderer
}

// NewResolver returns a Resolver. A nil Renderer defaults to a ZoneRenderer.
func NewResolver(cal Calendar, r Renderer) *Resolver {
	if r == nil {
		r = NewZoneRenderer()
	}
	return &Resolver{cal: cal, render: r}
}

// Calendar returns the configured calendar.
func (r *Resolver) Calendar() Calendar { return r.cal }

// IsBusinessHours reports whether t lies inside business hours. It fails open:
// if t cannot be rendered in the configured zone the answer is true.
func (r *Resolver) IsBusinessHours(t time.Time) bool {
	if !r.cal.Enabled {
		return true
	}
	c, err := r.render.Render(t, r.cal.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", r.cal.Timezone).Msg("render business hours, treating as open")
		return true
	}
	if !r.cal.Days[c.Weekday] {
		return false
	}
	clk := c.Clock()
	return !clk.Before(r.cal.Start) && clk.Before(r.cal.End)
}

// NextBusinessHoursStart returns the first instant strictly after from at which
// business hours begin. With the calendar disabled it returns from. If no
// instant can be resolved it returns from plus 24h.
func (r *Resolver) NextBusinessHoursStart(from time.Time) time.Time {
	if !r.cal.Enabled {
		return from
	}
	c, err := r.render.Render(from, r.cal.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", r.cal.Timezone).Msg("render next business start, using fallback")
		return from.Add(fallbackWait)
	}
	for i := 0; i <= maxScanDays; i++ {
		// Noon keeps the civil date stable under normalization.
		day := time.Date(c.Year, c.Month, c.Day+i, 12, 0, 0, 0, time.UTC)
		if !r.cal.Days[day.Weekday()] {
			continue
		}
		if i == 0 && !c.Clock().Before(r.cal.Start) {
			continue
		}
		at, ok := r.civilToInstant(day.Year(), day.Month(), day.Day(), r.cal.Start)
		if !ok {
			log.Warn().
				Str("timezone", r.cal.Timezone).
				Str("date", day.Format("2006-01-02")).
				Str("start", r.cal.Start.String()).
				Msg("business start does not exist on date, using fallback")
			return from.Add(fallbackWait)
		}
		if at.After(from) {
			return at
		}
	}
	return from.Add(fallbackWait)
}

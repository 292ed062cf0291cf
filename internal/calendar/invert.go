package calendar

import "time"

const (
	minOffsetHours = -12
	maxOffsetHours = 14
	sweepStep      = 15 * time.Minute
)

// civilToInstant finds the instant whose rendering in the calendar zone is
// exactly the given date and clock. Whole-hour UTC offsets are tried first,
// from +14 down to -12, followed by a quarter-hour sweep across the same
// span for zones with fractional offsets. Both passes visit candidates in
// ascending instant order, so inside a DST fold the earlier instant wins.
// Inside a DST gap no candidate matches and ok is false.
func (r *Resolver) civilToInstant(year int, month time.Month, day int, clk Clock) (time.Time, bool) {
	wall := time.Date(year, month, day, clk.Hour, clk.Minute, 0, 0, time.UTC)
	for off := maxOffsetHours; off >= minOffsetHours; off-- {
		cand := wall.Add(-time.Duration(off) * time.Hour)
		if r.rendersAs(cand, year, month, day, clk) {
			return cand, true
		}
	}
	first := wall.Add(-maxOffsetHours * time.Hour)
	last := wall.Add(-minOffsetHours * time.Hour)
	for cand := first; !cand.After(last); cand = cand.Add(sweepStep) {
		if r.rendersAs(cand, year, month, day, clk) {
			return cand, true
		}
	}
	return time.Time{}, false
}

func (r *Resolver) rendersAs(t time.Time, year int, month time.Month, day int, clk Clock) bool {
	c, err := r.render.Render(t, r.cal.Timezone)
	if err != nil {
		return false
	}
	return c.Year == year && c.Month == month && c.Day == day &&
		c.Hour == clk.Hour && c.Minute == clk.Minute
}

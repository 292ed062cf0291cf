package calendar

import "time"

// maxElapsedWindows bounds BusinessElapsed to roughly three years of
// business days.
const maxElapsedWindows = 2000

// BusinessElapsed returns how much of [start, end) falls inside business
// hours. The figure is reported alongside SLA records; it does not feed
// deadline computation.
func (r *Resolver) BusinessElapsed(start, end time.Time) time.Duration {
	if end.Before(start) {
		start, end = end, start
	}
	if !r.cal.Enabled {
		return end.Sub(start)
	}
	total := time.Duration(0)
	cur := start
	for i := 0; i < maxElapsedWindows && cur.Before(end); i++ {
		if !r.IsBusinessHours(cur) {
			cur = r.NextBusinessHoursStart(cur)
			continue
		}
		c, err := r.render.Render(cur, r.cal.Timezone)
		if err != nil {
			return total + end.Sub(cur)
		}
		windowEnd, ok := r.civilToInstant(c.Year, c.Month, c.Day, r.cal.End)
		if !ok || !windowEnd.After(cur) {
			return total
		}
		total += minTime(end, windowEnd).Sub(cur)
		cur = windowEnd
	}
	return total
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a civil time of day with minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// Before reports whether c is strictly earlier in the day than o.
func (c Clock) Before(o Clock) bool { return c.minutes() < o.minutes() }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays parses a comma separated list of weekdays. Entries may be
// names ("Mon", "tuesday"), numbers (0=Sunday..6=Saturday) or ranges of
// either ("Mon-Fri", "1-5").
func ParseWeekdays(s string) (map[time.Weekday]bool, error) {
	out := map[time.Weekday]bool{}
	for _, raw := range strings.Split(s, ",") {
		item := strings.ToLower(strings.TrimSpace(raw))
		if item == "" {
			continue
		}
		if from, to, ok := strings.Cut(item, "-"); ok {
			a, err := parseWeekday(from)
			if err != nil {
				return nil, err
			}
			b, err := parseWeekday(to)
			if err != nil {
				return nil, err
			}
			for d := a; ; d = (d + 1) % 7 {
				out[d] = true
				if d == b {
					break
				}
			}
			continue
		}
		d, err := parseWeekday(item)
		if err != nil {
			return nil, err
		}
		out[d] = true
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(s)
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return time.Weekday(n), nil
}

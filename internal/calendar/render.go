package calendar

import (
	"sync"
	"time"
)

// Civil is an instant's calendar and clock fields as read in some zone.
type Civil struct {
	Year    int
	Month   time.Month
	Day     int
	Weekday time.Weekday
	Hour    int
	Minute  int
}

// Clock returns the time-of-day part of c.
func (c Civil) Clock() Clock { return Clock{Hour: c.Hour, Minute: c.Minute} }

// Renderer renders an instant's civil fields in a named zone. It is the only
// zone-aware capability the resolver relies on.
type Renderer interface {
	Render(t time.Time, tz string) (Civil, error)
}

// ZoneRenderer renders through the runtime's zone data, caching loaded
// locations by name.
type ZoneRenderer struct {
	mu   sync.Mutex
	locs map[string]*time.Location
}

func NewZoneRenderer() *ZoneRenderer {
	return &ZoneRenderer{locs: make(map[string]*time.Location)}
}

func (z *ZoneRenderer) Render(t time.Time, tz string) (Civil, error) {
	loc, err := z.location(tz)
	if err != nil {
		return Civil{}, err
	}
	lt := t.In(loc)
	return Civil{
		Year:    lt.Year(),
		Month:   lt.Month(),
		Day:     lt.Day(),
		Weekday: lt.Weekday(),
		Hour:    lt.Hour(),
		Minute:  lt.Minute(),
	}, nil
}

func (z *ZoneRenderer) location(tz string) (*time.Location, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.locs == nil {
		z.locs = make(map[string]*time.Location)
	}
	if loc, ok := z.locs[tz]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	z.locs[tz] = loc
	return loc, nil
}

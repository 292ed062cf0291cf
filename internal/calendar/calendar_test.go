package calendar

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func weekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
		time.Friday:    true,
	}
}

func everyDay() map[time.Weekday]bool {
	d := map[time.Weekday]bool{}
	for i := time.Sunday; i <= time.Saturday; i++ {
		d[i] = true
	}
	return d
}

func testResolver(tz string) *Resolver {
	return NewResolver(Calendar{
		Enabled:  true,
		Start:    Clock{Hour: 9},
		End:      Clock{Hour: 17},
		Timezone: tz,
		Days:     weekdays(),
	}, nil)
}

type brokenRenderer struct{}

func (brokenRenderer) Render(time.Time, string) (Civil, error) {
	return Civil{}, errors.New("no zone data")
}

func TestIsBusinessHoursBoundaries(t *testing.T) {
	r := testResolver("UTC")
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday just before open", time.Date(2024, 7, 1, 8, 59, 59, 0, time.UTC), false},
		{"monday at open", time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC), true},
		{"friday just before close", time.Date(2024, 7, 5, 16, 59, 59, 0, time.UTC), true},
		{"friday at close", time.Date(2024, 7, 5, 17, 0, 0, 0, time.UTC), false},
		{"saturday midday", time.Date(2024, 7, 6, 12, 0, 0, 0, time.UTC), false},
		{"sunday midday", time.Date(2024, 7, 7, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsBusinessHours(tt.at); got != tt.want {
				t.Fatalf("IsBusinessHours(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsBusinessHoursZone(t *testing.T) {
	r := testResolver("America/New_York")
	// 13:30 UTC is 09:30 EDT
	if !r.IsBusinessHours(time.Date(2024, 7, 1, 13, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected 09:30 EDT to be open")
	}
	// 12:30 UTC is 08:30 EDT
	if r.IsBusinessHours(time.Date(2024, 7, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected 08:30 EDT to be closed")
	}
}

func TestIsBusinessHoursFailsOpen(t *testing.T) {
	sat := time.Date(2024, 7, 6, 12, 0, 0, 0, time.UTC)
	r := NewResolver(Calendar{Enabled: true, Start: Clock{Hour: 9}, End: Clock{Hour: 17}, Timezone: "UTC", Days: weekdays()}, brokenRenderer{})
	if !r.IsBusinessHours(sat) {
		t.Fatalf("render failure should fail open")
	}
	bad := testResolver("Not/AZone")
	if !bad.IsBusinessHours(sat) {
		t.Fatalf("unknown zone should fail open")
	}
}

func TestIsBusinessHoursDisabled(t *testing.T) {
	r := NewResolver(Calendar{Enabled: false}, nil)
	if !r.IsBusinessHours(time.Date(2024, 7, 6, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("disabled calendar should always be open")
	}
	from := time.Date(2024, 7, 6, 3, 0, 0, 0, time.UTC)
	if got := r.NextBusinessHoursStart(from); !got.Equal(from) {
		t.Fatalf("disabled calendar next start = %s, want %s", got, from)
	}
}

func TestNextBusinessHoursStart(t *testing.T) {
	cases := []struct {
		name string
		tz   string
		from time.Time
		want time.Time
	}{
		{
			name: "friday evening rolls to monday",
			tz:   "UTC",
			from: time.Date(2024, 7, 5, 18, 0, 0, 0, time.UTC),
			want: time.Date(2024, 7, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "before open same day",
			tz:   "UTC",
			from: time.Date(2024, 7, 1, 7, 0, 0, 0, time.UTC),
			want: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at open is strictly after",
			tz:   "UTC",
			from: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 7, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "year rollover",
			tz:   "UTC",
			from: time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC),
			want: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "month rollover over weekend",
			tz:   "UTC",
			from: time.Date(2024, 5, 31, 17, 30, 0, 0, time.UTC),
			want: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "new york summer",
			tz:   "America/New_York",
			from: time.Date(2024, 7, 5, 22, 0, 0, 0, time.UTC),
			want: time.Date(2024, 7, 8, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "new york across spring forward",
			tz:   "America/New_York",
			from: time.Date(2024, 3, 8, 23, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "half hour offset",
			tz:   "Asia/Kolkata",
			from: time.Date(2024, 7, 1, 14, 30, 0, 0, time.UTC),
			want: time.Date(2024, 7, 2, 3, 30, 0, 0, time.UTC),
		},
		{
			name: "quarter hour offset",
			tz:   "Asia/Kathmandu",
			from: time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC),
			want: time.Date(2024, 7, 2, 3, 15, 0, 0, time.UTC),
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			r := testResolver(tt.tz)
			if got := r.NextBusinessHoursStart(tt.from); !got.Equal(tt.want) {
				t.Fatalf("NextBusinessHoursStart(%s) = %s, want %s", tt.from, got.UTC(), tt.want)
			}
		})
	}
}

func TestNextBusinessHoursStartDSTGapFallsBack(t *testing.T) {
	r := NewResolver(Calendar{
		Enabled:  true,
		Start:    Clock{Hour: 2, Minute: 30},
		End:      Clock{Hour: 5},
		Timezone: "America/New_York",
		Days:     everyDay(),
	}, nil)
	// 2024-03-10 02:30 does not exist in New York.
	from := time.Date(2024, 3, 9, 17, 0, 0, 0, time.UTC)
	if got, want := r.NextBusinessHoursStart(from), from.Add(24*time.Hour); !got.Equal(want) {
		t.Fatalf("got %s, want fallback %s", got, want)
	}
}

func TestNextBusinessHoursStartDSTFoldPicksEarlier(t *testing.T) {
	r := NewResolver(Calendar{
		Enabled:  true,
		Start:    Clock{Hour: 1, Minute: 30},
		End:      Clock{Hour: 5},
		Timezone: "America/New_York",
		Days:     everyDay(),
	}, nil)
	// 2024-11-03 01:30 happens at 05:30 UTC (EDT) and again at 06:30 UTC (EST).
	from := time.Date(2024, 11, 2, 16, 0, 0, 0, time.UTC)
	want := time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC)
	if got := r.NextBusinessHoursStart(from); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got.UTC(), want)
	}
}

func TestNextBusinessHoursStartRenderFailure(t *testing.T) {
	r := NewResolver(Calendar{Enabled: true, Start: Clock{Hour: 9}, End: Clock{Hour: 17}, Timezone: "UTC", Days: weekdays()}, brokenRenderer{})
	from := time.Date(2024, 7, 5, 18, 0, 0, 0, time.UTC)
	if got, want := r.NextBusinessHoursStart(from), from.Add(24*time.Hour); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNextBusinessHoursStartNoDays(t *testing.T) {
	r := NewResolver(Calendar{Enabled: true, Start: Clock{Hour: 9}, End: Clock{Hour: 17}, Timezone: "UTC", Days: map[time.Weekday]bool{}}, nil)
	from := time.Date(2024, 7, 5, 18, 0, 0, 0, time.UTC)
	if got, want := r.NextBusinessHoursStart(from), from.Add(24*time.Hour); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cal     Calendar
		wantErr bool
	}{
		{"disabled", Calendar{}, false},
		{"ok", Calendar{Enabled: true, Start: Clock{Hour: 9}, End: Clock{Hour: 17}, Timezone: "UTC", Days: weekdays()}, false},
		{"start equals end", Calendar{Enabled: true, Start: Clock{Hour: 9}, End: Clock{Hour: 9}, Timezone: "UTC", Days: weekdays()}, true},
		{"start after end", Calendar{Enabled: true, Start: Clock{Hour: 18}, End: Clock{Hour: 9}, Timezone: "UTC", Days: weekdays()}, true},
		{"no zone", Calendar{Enabled: true, Start: Clock{Hour: 9}, End: Clock{Hour: 17}, Days: weekdays()}, true},
		{"no days", Calendar{Enabled: true, Start: Clock{Hour: 9}, End: Clock{Hour: 17}, Timezone: "UTC"}, true},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cal.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

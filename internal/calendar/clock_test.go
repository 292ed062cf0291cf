package calendar

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", Clock{Hour: 9}, false},
		{" 17:45 ", Clock{Hour: 17, Minute: 45}, false},
		{"24:00", Clock{}, true},
		{"9", Clock{}, true},
		{"09:60", Clock{}, true},
	}
	for _, tt := range cases {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseClock(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseClock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseWeekdays(t *testing.T) {
	got, err := ParseWeekdays("Mon-Fri")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 || got[time.Saturday] || !got[time.Monday] || !got[time.Friday] {
		t.Fatalf("unexpected days: %v", got)
	}
	got, err = ParseWeekdays("0,6")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[time.Sunday] || !got[time.Saturday] {
		t.Fatalf("unexpected days: %v", got)
	}
	got, err = ParseWeekdays("fri-mon")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || !got[time.Sunday] || got[time.Wednesday] {
		t.Fatalf("wrapping range: %v", got)
	}
	if _, err := ParseWeekdays("funday"); err == nil {
		t.Fatalf("expected error")
	}
}

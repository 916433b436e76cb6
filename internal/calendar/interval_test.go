package calendar

import (
	"testing"
	"time"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2026-03-02 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMergeJoinsOverlappingAndTouching(t *testing.T) {
	in := []Interval{
		{Start: at("13:00"), End: at("14:00")},
		{Start: at("09:00"), End: at("10:00")},
		{Start: at("10:00"), End: at("10:30")},
		{Start: at("09:30"), End: at("09:45")},
		{Start: at("16:00"), End: at("16:00")},
	}

	got := Merge(in)

	want := []Interval{
		{Start: at("09:00"), End: at("10:30")},
		{Start: at("13:00"), End: at("14:00")},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if len(in) != 5 || !in[0].Start.Equal(at("13:00")) {
		t.Fatal("input slice must not be modified")
	}
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	busy := Interval{Start: at("10:00"), End: at("10:30")}
	tests := []struct {
		name string
		slot Interval
		want bool
	}{
		{"ends at busy start", Interval{Start: at("09:30"), End: at("10:00")}, false},
		{"starts at busy end", Interval{Start: at("10:30"), End: at("11:00")}, false},
		{"same interval", busy, true},
		{"straddles start", Interval{Start: at("09:45"), End: at("10:15")}, true},
		{"inside", Interval{Start: at("10:10"), End: at("10:20")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := busy.Overlaps(tt.slot); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

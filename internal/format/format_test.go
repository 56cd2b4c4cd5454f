package format

import (
	"regexp"
	"testing"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0m"},
		{59, "0m"},
		{60, "1m"},
		{3599, "59m"},
		{3600, "1h 0m"},
		{3661, "1h 1m"},
		{7199, "1h 59m"},
		{90000, "25h 0m"},
		{-5, "0m"},
	}

	for _, tc := range tests {
		if got := Duration(tc.in); got != tc.want {
			t.Errorf("Duration(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDurationShape(t *testing.T) {
	withHours := regexp.MustCompile(`^[1-9][0-9]*h [0-9]+m$`)
	minutesOnly := regexp.MustCompile(`^[0-9]+m$`)

	for s := int64(0); s < 3*3600; s += 7 {
		got := Duration(s)
		if s >= 3600 {
			if !withHours.MatchString(got) {
				t.Fatalf("Duration(%d) = %q, want <h>h <m>m", s, got)
			}
		} else if !minutesOnly.MatchString(got) {
			t.Fatalf("Duration(%d) = %q, want <m>m", s, got)
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0%"},
		{42.4, "42%"},
		{42.5, "43%"},
		{99.6, "100%"},
		{100, "100%"},
		{2.5, "3%"},
	}
	for _, tc := range tests {
		if got := Percent(tc.in); got != tc.want {
			t.Errorf("Percent(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

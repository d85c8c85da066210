package frame

import (
	"testing"
	"time"
)

func TestTime_Micros(t *testing.T) {
	cases := []struct {
		in   Time
		want int64
	}{
		{Time{Value: 1, Scale: 30}, 33333},
		{Time{Value: 90000, Scale: 90000}, 1_000_000},
		{Time{Value: 1001, Scale: 30000}, 33366},
		{Time{Value: -1, Scale: 3}, -333334},
		{InvalidTime, 0},
	}
	for _, c := range cases {
		if got := c.in.Micros(); got != c.want {
			t.Fatalf("Micros(%+v) = %d want %d", c.in, got, c.want)
		}
	}
	if d := MicrosTime(1500 * time.Microsecond).Duration(); d != 1500*time.Microsecond {
		t.Fatalf("round trip duration = %v", d)
	}
}

func TestTime_Compare(t *testing.T) {
	a := Time{Value: 1, Scale: 2}
	b := Time{Value: 600, Scale: 1000}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(Time{Value: 500, Scale: 1000}) != 0 {
		t.Fatalf("rational comparison wrong")
	}
	if InvalidTime.Compare(a) != -1 {
		t.Fatalf("invalid time should sort first")
	}
}

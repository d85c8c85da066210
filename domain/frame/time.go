package frame

import (
	"math/big"
	"time"
)

// MicrosecondScale is the timescale frame timestamps are normalised to.
const MicrosecondScale = 1_000_000

// Time is a rational media time: Value / Scale seconds. A zero Scale marks
// an invalid time.
type Time struct {
	Value int64
	Scale int32
}

// InvalidTime is the zero Time.
var InvalidTime = Time{}

// MicrosTime returns d on the microsecond timescale.
func MicrosTime(d time.Duration) Time {
	return Time{Value: d.Microseconds(), Scale: MicrosecondScale}
}

// Valid reports whether t carries a usable timescale.
func (t Time) Valid() bool { return t.Scale > 0 }

// Micros converts t to whole microseconds, rounding toward negative infinity.
func (t Time) Micros() int64 {
	if !t.Valid() {
		return 0
	}
	if t.Scale == MicrosecondScale {
		return t.Value
	}
	n := new(big.Int).Mul(big.NewInt(t.Value), big.NewInt(MicrosecondScale))
	q, _ := new(big.Int).DivMod(n, big.NewInt(int64(t.Scale)), new(big.Int))
	return q.Int64()
}

// Duration converts t to a time.Duration with microsecond precision.
func (t Time) Duration() time.Duration {
	return time.Duration(t.Micros()) * time.Microsecond
}

// Compare returns -1, 0 or +1. Invalid times sort before valid ones.
func (t Time) Compare(o Time) int {
	switch {
	case !t.Valid() && !o.Valid():
		return 0
	case !t.Valid():
		return -1
	case !o.Valid():
		return 1
	}
	l := new(big.Int).Mul(big.NewInt(t.Value), big.NewInt(int64(o.Scale)))
	r := new(big.Int).Mul(big.NewInt(o.Value), big.NewInt(int64(t.Scale)))
	return l.Cmp(r)
}

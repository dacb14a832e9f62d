// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stats

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fastrand"
)

func TestTiming(t *testing.T) {
	tm := NewTiming("device", 1000, 1000, 2e9, 500*time.Millisecond)
	tests := []struct {
		name      string
		got, want float64
	}{
		{"seconds", tm.Seconds, 0.5},
		{"MPixels/s", tm.MPixelsPerSec, 2},
		{"GB/s", tm.GBPerSec, 0.016},
		{"GFlop/s", tm.GFlopsPerSec, 4},
	}
	for _, test := range tests {
		if math.Abs(test.got-test.want) > 1e-9 {
			t.Errorf("%s = %g; want %g", test.name, test.got, test.want)
		}
	}
	base := NewTiming("cpu", 1000, 1000, 2e9, 2*time.Second)
	if got := tm.Speedup(base); math.Abs(got-4) > 1e-9 {
		t.Errorf("Speedup() = %g; want 4", got)
	}
	if !strings.Contains(tm.String(), "MPixels/s") {
		t.Errorf("String() = %q lacks throughput", tm.String())
	}
	if z := NewTiming("zero", 10, 10, 100, 0); math.IsInf(z.MPixelsPerSec, 0) || math.IsNaN(z.MPixelsPerSec) {
		t.Errorf("zero duration gave %g MPixels/s", z.MPixelsPerSec)
	}
}

func TestCompareIdentical(t *testing.T) {
	const w, h = 20, 10
	a := make([]float32, w*h)
	for i := range a {
		a[i] = float32(i) / 200
	}
	c, err := Compare(a, a, w, h, 3, 1e-5)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Match() || c.MaxAbsErr != 0 || c.MedianAbsErr != 0 || c.RMSErr != 0 || c.ErrSigma != 0 {
		t.Errorf("Compare(a, a) = %+v; want exact match", c)
	}
	if c.Interior != 14*4 || c.Pixels != 200 {
		t.Errorf("interior %d pixels %d; want 56 200", c.Interior, c.Pixels)
	}
}

func TestCompareMismatch(t *testing.T) {
	const w, h = 20, 10
	want := make([]float32, w*h)
	for i := range want {
		want[i] = 0.5
	}
	got := append([]float32(nil), want...)
	got[5*w+5] += 0.01 // interior
	got[0] = 1         // border
	c, err := Compare(want, got, w, h, 3, 1e-3)
	if err != nil {
		t.Fatal(err)
	}
	if c.Match() {
		t.Errorf("Compare() matched; want mismatch")
	}
	if c.Mismatches != 1 || c.BorderMismatches != 1 {
		t.Errorf("mismatches %d border %d; want 1 1", c.Mismatches, c.BorderMismatches)
	}
	if math.Abs(float64(c.MaxAbsErr)-0.01) > 1e-6 {
		t.Errorf("MaxAbsErr = %g; want 0.01", c.MaxAbsErr)
	}
	if math.Abs(float64(c.MaxRelErr)-0.02) > 1e-5 {
		t.Errorf("MaxRelErr = %g; want 0.02", c.MaxRelErr)
	}
	if c.MedianAbsErr != 0 {
		t.Errorf("MedianAbsErr = %g; want 0", c.MedianAbsErr)
	}

	loose, _ := Compare(want, got[:], w, h, 3, 0.1)
	if loose.Mismatches != 0 {
		t.Errorf("loose tolerance gave %d mismatches", loose.Mismatches)
	}
}

func TestCompareRelativeTolerance(t *testing.T) {
	const w, h = 10, 10
	want := make([]float32, w*h)
	for i := range want {
		want[i] = 5000
	}
	got := append([]float32(nil), want...)
	got[4*w+4] += 0.25 // 5e-5 relative
	got[5*w+5] += 1    // 2e-4 relative
	got[6*w+6] = 0.5
	want[6*w+6] = 0.50008 // 8e-5 absolute below magnitude one
	c, err := Compare(want, got, w, h, 2, 1e-4)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mismatches != 1 {
		t.Errorf("mismatches %d; want 1", c.Mismatches)
	}
	if c.MaxAbsErr != 1 {
		t.Errorf("MaxAbsErr = %g; want 1", c.MaxAbsErr)
	}
}

func TestCompareErrors(t *testing.T) {
	if _, err := Compare(make([]float32, 10), make([]float32, 12), 5, 2, 0, 0); err == nil {
		t.Errorf("size mismatch gave no error")
	}
	if _, err := Compare(make([]float32, 36), make([]float32, 36), 6, 6, 3, 0); err == nil {
		t.Errorf("no interior gave no error")
	}
}

func TestHistogramFit(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(42)
	data := make([]float32, 20000)
	for i := range data {
		// Sum of twelve uniforms approximates a standard normal distribution
		sum := float32(0)
		for j := 0; j < 12; j++ {
			sum += float32(rng.Uint32n(1<<24)) / (1 << 24)
		}
		data[i] = 2 + (sum - 6)
	}
	bins := make([]int32, 64)
	Histogram(data, -3, 7, bins)
	total := int32(0)
	for _, b := range bins {
		total += b
	}
	if total != int32(len(data)) {
		t.Errorf("histogram holds %d values; want %d", total, len(data))
	}
	mode, sigma, err := GetModeStdDevFromHistogram(bins, -3, 7)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(mode-2)) > 0.25 || math.Abs(float64(sigma-1)) > 0.25 {
		t.Errorf("fit mode %g sigma %g; want about 2 and 1", mode, sigma)
	}
}

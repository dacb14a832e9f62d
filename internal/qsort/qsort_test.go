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

package qsort

import (
	"testing"

	"github.com/valyala/fastrand"
)

// prepares array of given length with a random permutation of 1..n
func permutation(rng *fastrand.RNG, n int) []float32 {
	arr := make([]float32, n)
	for j := 0; j < len(arr); j++ {
		arr[j] = float32(j + 1)
	}
	for j := 0; j < len(arr); j++ {
		k := rng.Uint32n(uint32(len(arr)))
		arr[j], arr[k] = arr[k], arr[j]
	}
	return arr
}

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 1000; i++ {
		arr := permutation(&rng, i)

		// calculate expected result
		var expect float32
		if (i & 1) != 0 {
			expect = float32((i + 1) / 2)
		} else {
			expect = 0.5 * (float32(i/2) + float32(i/2+1))
		}

		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Errorf("median(1..%d)=%f; want %f", i, res, expect)
		}
	}
}

func TestMedianEmpty(t *testing.T) {
	if res := QSelectMedianFloat32(nil); res != 0 {
		t.Errorf("median(nil)=%f; want 0", res)
	}
}

func TestSelect(t *testing.T) {
	rng := fastrand.RNG{}
	for _, n := range []int{1, 2, 3, 17, 128} {
		for k := 1; k <= n; k++ {
			arr := permutation(&rng, n)
			if res := QSelectFloat32(arr, k); res != float32(k) {
				t.Errorf("select(1..%d, %d)=%f; want %d", n, k, res, k)
			}
		}
	}
}

func TestPercentile(t *testing.T) {
	rng := fastrand.RNG{}
	tcs := []struct {
		N          int
		Percentile float32
		Want       float32
	}{
		{100, 99, 99},
		{100, 100, 100},
		{100, 0, 1},
		{10, 50, 5},
		{1, 99, 1},
	}
	for _, tc := range tcs {
		arr := permutation(&rng, tc.N)
		if res := QSelectPercentileFloat32(arr, tc.Percentile); res != tc.Want {
			t.Errorf("percentile(1..%d, %g)=%f; want %f", tc.N, tc.Percentile, res, tc.Want)
		}
	}
}

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
	"math"
)

// Select kth lowest element (1-based) from an array of float32. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		// partition around the middle element
		mid := (left + right) >> 1
		pivot := a[mid]
		l, r := left-1, right+1
		for {
			for {
				l++
				if a[l] >= pivot {
					break
				}
			}
			for {
				r--
				if a[r] <= pivot {
					break
				}
			}
			if l >= r {
				break // index in r
			}
			a[l], a[r] = a[r], a[l]
		}
		index := r

		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k = k - offset
		}
	}
	return a[left]
}

// Select median of an array of float32. For even lengths, returns the mean of the two middle elements.
// Partially reorders the array. Returns 0 for an empty array. Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	upper := QSelectFloat32(a, (n>>1)+1)
	if n&1 != 0 {
		return upper
	}
	// after selection, all elements left of the upper middle are <= it
	lower := a[0]
	for _, v := range a[1 : n>>1] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + upper)
}

// Select the given percentile in [0,100] of an array of float32, rounding the rank up.
// Partially reorders the array. Returns 0 for an empty array. Array must not contain IEEE NaN
func QSelectPercentileFloat32(a []float32, percentile float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	k := int(math.Ceil(float64(percentile) * float64(n) / 100))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return QSelectFloat32(a, k)
}

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

package filter

import (
	"fmt"
	"math"
)

// Probability mass of the normal distribution that a gaussian kernel may drop on each side
const gaussianTail = 0.01

// Cumulative distribution function of a zero-mean normal distribution with standard deviation sigma
func gaussianCDF(x, sigma float64) float64 {
	return 0.5 * math.Erfc(-x/(math.Sqrt2*sigma))
}

// Returns the smallest kernel radius for the given sigma whose dropped tail mass left of
// the kernel is below the accepted error. Fails with ErrTooWide if that exceeds maxRadius
func GaussianRadius(sigma float32, maxRadius int) (int, error) {
	if !(sigma > 0) {
		return 0, fmt.Errorf("gaussian needs positive sigma, got %g", sigma)
	}
	s := float64(sigma)
	for r := 0; r <= maxRadius; r++ {
		// pixel r covers [r-0.5, r+0.5], so the tail starts half a pixel beyond the radius
		if gaussianCDF(-0.5-float64(r+1), s) < gaussianTail {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: gaussian sigma %g needs a radius above %d", ErrTooWide, sigma, maxRadius)
}

// Generates a normalized 1D gaussian kernel of width 2r+1 for the given sigma, with r from
// GaussianRadius. Each tap integrates the distribution over its pixel, and taps are mirrored
// around the center so the kernel is exactly symmetric
func GaussianKernel1D(sigma float32, maxRadius int) ([]float32, error) {
	radius, err := GaussianRadius(sigma, maxRadius)
	if err != nil {
		return nil, err
	}
	s := float64(sigma)
	taps := make([]float64, 2*radius+1)
	sum := 0.0
	for i := 0; i <= radius; i++ {
		x := float64(i - radius)
		taps[i] = gaussianCDF(x+0.5, s) - gaussianCDF(x-0.5, s)
		taps[2*radius-i] = taps[i]
		sum += taps[i]
		if i != radius {
			sum += taps[i]
		}
	}

	// renormalize for the truncated tails
	kernel := make([]float32, len(taps))
	for i, v := range taps {
		kernel[i] = float32(v / sum)
	}
	return kernel, nil
}

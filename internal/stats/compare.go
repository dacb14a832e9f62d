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
	"fmt"
	"math"

	"github.com/mlnoga/haloconv/internal/qsort"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Values below this magnitude are excluded from the relative error
const relErrFloor = 1e-6

// Number of histogram bins for fitting the error distribution
const errorBins = 64

// Differences between two filtered images
type Comparison struct {
	Pixels           int     `json:"pixels"`
	Interior         int     `json:"interior"`
	Tolerance        float32 `json:"tolerance"`
	MaxAbsErr        float32 `json:"maxAbsErr"`
	MeanAbsErr       float32 `json:"meanAbsErr"`
	MedianAbsErr     float32 `json:"medianAbsErr"`
	P99AbsErr        float32 `json:"p99AbsErr"`
	MaxRelErr        float32 `json:"maxRelErr"`
	MeanErr          float64 `json:"meanErr"` // signed, got minus want
	StdDevErr        float64 `json:"stdDevErr"`
	RMSErr           float64 `json:"rmsErr"`
	ErrMode          float32 `json:"errMode"`          // normal fit to the signed error histogram, zero if errors are constant
	ErrSigma         float32 `json:"errSigma"`         //
	Mismatches       int     `json:"mismatches"`       // interior pixels differing by more than the tolerance
	BorderMismatches int     `json:"borderMismatches"` // border pixels differing at all
}

// Compares got against want, both width x height images with an unfiltered border of the given
// half width. Interior pixels match if |got-want| <= tol*max(1,|want|), border pixels must be identical
func Compare(want, got []float32, width, height, half int, tol float32) (*Comparison, error) {
	if len(want) != width*height || len(got) != width*height {
		return nil, fmt.Errorf("images of %d and %d pixels do not match %dx%d", len(want), len(got), width, height)
	}
	if width <= 2*half || height <= 2*half {
		return nil, fmt.Errorf("image %dx%d has no interior for half width %d", width, height, half)
	}
	c := &Comparison{Pixels: width * height, Interior: (width - 2*half) * (height - 2*half), Tolerance: tol}

	diffs := make([]float64, 0, c.Interior)
	absDiffs := make([]float32, 0, c.Interior)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			interior := x >= half && x < width-half && y >= half && y < height-half
			if !interior {
				if got[i] != want[i] {
					c.BorderMismatches++
				}
				continue
			}
			d := got[i] - want[i]
			ad := float32(math.Abs(float64(d)))
			diffs = append(diffs, float64(d))
			absDiffs = append(absDiffs, ad)
			if ad > tol*mismatchScale(want[i]) || math.IsNaN(float64(d)) {
				c.Mismatches++
			}
			if w := float32(math.Abs(float64(want[i]))); w > relErrFloor && ad/w > c.MaxRelErr {
				c.MaxRelErr = ad / w
			}
		}
	}

	abs64 := make([]float64, len(absDiffs))
	for i, ad := range absDiffs {
		abs64[i] = float64(ad)
	}
	c.MaxAbsErr = float32(floats.Max(abs64))
	c.MeanAbsErr = float32(floats.Sum(abs64) / float64(len(abs64)))
	c.RMSErr = floats.Norm(diffs, 2) / math.Sqrt(float64(len(diffs)))
	if len(diffs) > 1 {
		c.MeanErr, c.StdDevErr = stat.MeanStdDev(diffs, nil)
	} else {
		c.MeanErr = diffs[0]
	}

	minErr, maxErr := floats.Min(diffs), floats.Max(diffs)
	if maxErr > minErr && len(diffs) >= errorBins {
		signed := make([]float32, len(diffs))
		for i, d := range diffs {
			signed[i] = float32(d)
		}
		bins := make([]int32, errorBins)
		Histogram(signed, float32(minErr), float32(maxErr), bins)
		mode, sigma, err := GetModeStdDevFromHistogram(bins, float32(minErr), float32(maxErr))
		if err == nil && isFinite(mode) && isFinite(sigma) {
			c.ErrMode, c.ErrSigma = mode, sigma
		}
	}

	// Selection reorders its input, so this goes last
	c.P99AbsErr = qsort.QSelectPercentileFloat32(absDiffs, 99)
	c.MedianAbsErr = qsort.QSelectMedianFloat32(absDiffs)
	return c, nil
}

// Reports whether all interior pixels are within tolerance and all border pixels are identical
func (c *Comparison) Match() bool {
	return c.Mismatches == 0 && c.BorderMismatches == 0
}

func (c *Comparison) String() string {
	verdict := "MATCH"
	if !c.Match() {
		verdict = "MISMATCH"
	}
	return fmt.Sprintf(`Comparison of %d pixels (%d interior), tolerance %g: %s
  abs error max %.4g mean %.4g median %.4g p99 %.4g
  rel error max %.4g
  signed error mean %.4g stddev %.4g rms %.4g
  %d interior mismatches, %d border mismatches
`, c.Pixels, c.Interior, c.Tolerance, verdict, c.MaxAbsErr, c.MeanAbsErr, c.MedianAbsErr, c.P99AbsErr,
		c.MaxRelErr, c.MeanErr, c.StdDevErr, c.RMSErr, c.Mismatches, c.BorderMismatches)
}

// Tolerances are absolute below magnitude one and relative above it
func mismatchScale(want float32) float32 {
	return float32(math.Max(1, math.Abs(float64(want))))
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

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

// Package filter defines square convolution kernels of odd width and the presets of the tool.
package filter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrEvenWidth = errors.New("filter width must be odd and positive")
	ErrWeights   = errors.New("filter weights do not match width")
	ErrTooWide   = errors.New("filter too wide")
)

// Widest supported filter. Its halo on an 8x8 work-group takes 19 KiB of local memory
const MaxWidth = 63

// A square convolution kernel of odd width. Weights are row-major, the center is at (Half(), Half())
type Kernel struct {
	Name    string    `json:"name"`
	Width   int       `json:"width"`
	Weights []float32 `json:"weights"`
}

// Creates a kernel, copying and validating the given weights
func New(name string, width int, weights []float32) (*Kernel, error) {
	k := &Kernel{Name: name, Width: width, Weights: append([]float32(nil), weights...)}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// Checks for odd width up to MaxWidth, width*width weights, and finite values
func (k *Kernel) Validate() error {
	if k.Width <= 0 || k.Width%2 == 0 {
		return fmt.Errorf("%w: %s has width %d", ErrEvenWidth, k.Name, k.Width)
	}
	if k.Width > MaxWidth {
		return fmt.Errorf("%w: %s has width %d, at most %d supported", ErrTooWide, k.Name, k.Width, MaxWidth)
	}
	if len(k.Weights) != k.Width*k.Width {
		return fmt.Errorf("%w: %s has %d weights for width %d", ErrWeights, k.Name, len(k.Weights), k.Width)
	}
	for i, w := range k.Weights {
		if math.IsNaN(float64(w)) || math.IsInf(float64(w), 0) {
			return fmt.Errorf("%w: %s weight %d is %f", ErrWeights, k.Name, i, w)
		}
	}
	return nil
}

// Half width, i.e. the offset of the center from the edge
func (k *Kernel) Half() int { return (k.Width - 1) / 2 }

// Weight at given row and column, both in [0, Width)
func (k *Kernel) At(row, col int) float32 { return k.Weights[row*k.Width+col] }

// Sum of all weights. Normalized blur kernels sum to one
func (k *Kernel) Sum() float32 {
	sum := float32(0)
	for _, w := range k.Weights {
		sum += w
	}
	return sum
}

// Reports whether the kernel is the outer product of two vectors, i.e. has matrix rank one
// within the given relative tolerance on its singular values. All-zero kernels are not separable
func (k *Kernel) Separable(tol float64) (bool, error) {
	data := make([]float64, len(k.Weights))
	for i, w := range k.Weights {
		data[i] = float64(w)
	}
	m := mat.NewDense(k.Width, k.Width, data)

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return false, fmt.Errorf("%s: singular value decomposition failed", k.Name)
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return false, nil
	}
	if len(values) == 1 {
		return true, nil
	}
	return values[1]/values[0] <= tol, nil
}

func (k *Kernel) String() string {
	return fmt.Sprintf("%s %dx%d sum %.4g", k.Name, k.Width, k.Width, k.Sum())
}

// Identity kernel of given width, copying the center sample
func Identity(width int) *Kernel {
	k := &Kernel{Name: fmt.Sprintf("identity%d", width), Width: width, Weights: make([]float32, width*width)}
	k.Weights[k.Half()*width+k.Half()] = 1
	return k
}

// Normalized averaging kernel of given width
func Box(width int) *Kernel {
	k := &Kernel{Name: fmt.Sprintf("box%d", width), Width: width, Weights: make([]float32, width*width)}
	w := 1 / float32(width*width)
	for i := range k.Weights {
		k.Weights[i] = w
	}
	return k
}

// 45 degree motion blur of width 7
func MotionBlur45() *Kernel {
	return &Kernel{Name: "motion45", Width: 7, Weights: []float32{
		0, 0, 0, 0, 0, 0.0145, 0,
		0, 0, 0, 0, 0.0376, 0.1283, 0.0145,
		0, 0, 0, 0.0376, 0.1283, 0.0376, 0,
		0, 0, 0.0376, 0.1283, 0.0376, 0, 0,
		0, 0.0376, 0.1283, 0.0376, 0, 0, 0,
		0.0145, 0.1283, 0.0376, 0, 0, 0, 0,
		0, 0.0145, 0, 0, 0, 0, 0,
	}}
}

// Mexican hat (laplacian of gaussian) edge detector of width 7
func MexicanHat7() *Kernel {
	return &Kernel{Name: "mexicanhat7", Width: 7, Weights: []float32{
		0, 0, -1, -1, -1, 0, 0,
		0, -1, -3, -3, -3, -1, 0,
		-1, -3, 0, 7, 0, -3, -1,
		-1, -3, 7, 24, 7, -3, -1,
		-1, -3, 0, 7, 0, -3, -1,
		0, -1, -3, -3, -3, -1, 0,
		0, 0, -1, -1, -1, 0, 0,
	}}
}

// Normalized 2D gaussian for the given standard deviation, built as outer product of GaussianKernel1D.
// Fails with ErrTooWide if sigma needs a kernel wider than MaxWidth
func Gaussian(sigma float32) (*Kernel, error) {
	k1, err := GaussianKernel1D(sigma, (MaxWidth-1)/2)
	if err != nil {
		return nil, err
	}
	width := len(k1)
	k := &Kernel{Name: "gaussian", Width: width, Weights: make([]float32, width*width)}
	sum := float32(0)
	for y, wy := range k1 {
		for x, wx := range k1 {
			k.Weights[y*width+x] = wy * wx
			sum += wy * wx
		}
	}
	for i := range k.Weights {
		k.Weights[i] /= sum
	}
	return k, nil
}

// Factory for a named preset. Sigma is used by the gaussian preset only
type presetFactory func(sigma float32) (*Kernel, error)

func fixed(k func() *Kernel) presetFactory {
	return func(float32) (*Kernel, error) { return k(), nil }
}

var presets = map[string]presetFactory{
	"identity7":   fixed(func() *Kernel { return Identity(7) }),
	"box7":        fixed(func() *Kernel { return Box(7) }),
	"motion45":    fixed(MotionBlur45),
	"mexicanhat7": fixed(MexicanHat7),
	"gaussian":    Gaussian,
}

// Default preset, the one the benchmark was designed around
const DefaultPreset = "motion45"

// Returns the named preset kernel
func Preset(name string, sigma float32) (*Kernel, error) {
	f, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown filter preset '%s', want one of %v", name, PresetNames())
	}
	return f(sigma)
}

// Sorted names of all presets
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

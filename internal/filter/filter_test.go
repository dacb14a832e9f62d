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
	"errors"
	"math"
	"testing"
)

func gaussian(t *testing.T, sigma float32) *Kernel {
	t.Helper()
	k, err := Gaussian(sigma)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestPresetsValid(t *testing.T) {
	for _, name := range PresetNames() {
		k, err := Preset(name, 1.5)
		if err != nil {
			t.Fatalf("Preset(%s) error %s", name, err)
		}
		if err := k.Validate(); err != nil {
			t.Errorf("Preset(%s) invalid: %s", name, err)
		}
		if k.Width%2 != 1 {
			t.Errorf("Preset(%s) width %d; want odd", name, k.Width)
		}
	}
}

func TestPresetUnknown(t *testing.T) {
	if _, err := Preset("sharpen", 0); err == nil {
		t.Errorf("Preset(sharpen) gave no error")
	}
	if _, err := Preset("gaussian", 0); err == nil {
		t.Errorf("Preset(gaussian, 0) gave no error")
	}
	if _, err := Preset("gaussian", float32(math.NaN())); err == nil {
		t.Errorf("Preset(gaussian, NaN) gave no error")
	}
}

func TestGaussianWidthBound(t *testing.T) {
	for _, sigma := range []float32{20, 1e5, float32(math.Inf(1))} {
		if _, err := Preset("gaussian", sigma); !errors.Is(err, ErrTooWide) {
			t.Errorf("Preset(gaussian, %g) = %v; want %v", sigma, err, ErrTooWide)
		}
	}
	k, err := Preset("gaussian", 13)
	if err != nil {
		t.Fatalf("Preset(gaussian, 13) = %v", err)
	}
	if k.Width > MaxWidth {
		t.Errorf("width %d; want at most %d", k.Width, MaxWidth)
	}
	if _, err := GaussianKernel1D(3, 2); !errors.Is(err, ErrTooWide) {
		t.Errorf("GaussianKernel1D(3, 2) = %v; want %v", err, ErrTooWide)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		width   int
		weights []float32
		want    error
	}{
		{3, make([]float32, 9), nil},
		{4, make([]float32, 16), ErrEvenWidth},
		{0, nil, ErrEvenWidth},
		{3, make([]float32, 8), ErrWeights},
		{1, []float32{float32(math.NaN())}, ErrWeights},
		{1, []float32{float32(math.Inf(1))}, ErrWeights},
		{MaxWidth + 2, make([]float32, (MaxWidth+2)*(MaxWidth+2)), ErrTooWide},
	}
	for _, test := range tests {
		_, err := New("test", test.width, test.weights)
		if !errors.Is(err, test.want) {
			t.Errorf("New(%d, %d weights) = %v; want %v", test.width, len(test.weights), err, test.want)
		}
	}
}

func TestSums(t *testing.T) {
	tests := []struct {
		k    *Kernel
		want float32
	}{
		{Identity(7), 1},
		{Box(7), 1},
		{Box(3), 1},
		{gaussian(t, 2), 1},
		{MexicanHat7(), 0},
	}
	for _, test := range tests {
		if got := test.k.Sum(); math.Abs(float64(got-test.want)) > 1e-5 {
			t.Errorf("%s sum %f; want %f", test.k.Name, got, test.want)
		}
	}
	if got := MotionBlur45().Sum(); math.Abs(float64(got-1)) > 1e-3 {
		t.Errorf("motion45 sum %f; want about 1", got)
	}
}

func TestIdentityCenter(t *testing.T) {
	k := Identity(7)
	if k.Half() != 3 {
		t.Errorf("Half() = %d; want 3", k.Half())
	}
	for row := 0; row < k.Width; row++ {
		for col := 0; col < k.Width; col++ {
			want := float32(0)
			if row == 3 && col == 3 {
				want = 1
			}
			if got := k.At(row, col); got != want {
				t.Errorf("At(%d,%d) = %f; want %f", row, col, got, want)
			}
		}
	}
}

func TestGaussianKernel1D(t *testing.T) {
	for _, sigma := range []float32{0.5, 1, 1.5, 3} {
		k, err := GaussianKernel1D(sigma, 31)
		if err != nil {
			t.Fatal(err)
		}
		if len(k)%2 != 1 {
			t.Fatalf("sigma %f width %d; want odd", sigma, len(k))
		}
		sum := float32(0)
		for i, v := range k {
			sum += v
			if v != k[len(k)-1-i] {
				t.Errorf("sigma %f asymmetric at %d", sigma, i)
			}
		}
		if math.Abs(float64(sum-1)) > 1e-5 {
			t.Errorf("sigma %f sum %f; want 1", sigma, sum)
		}
	}
	widths := map[float32]int{0.5: 1, 1: 3, 3: 13}
	for sigma, want := range widths {
		if r, err := GaussianRadius(sigma, 31); err != nil || 2*r+1 != want {
			t.Errorf("sigma %g width %d err %v; want %d", sigma, 2*r+1, err, want)
		}
	}
}

func TestSeparable(t *testing.T) {
	tests := []struct {
		k    *Kernel
		want bool
	}{
		{Identity(7), true},
		{Box(7), true},
		{gaussian(t, 1.5), true},
		{MotionBlur45(), false},
		{MexicanHat7(), false},
		{&Kernel{Name: "zero", Width: 3, Weights: make([]float32, 9)}, false},
	}
	for _, test := range tests {
		got, err := test.k.Separable(1e-5)
		if err != nil {
			t.Fatalf("%s: %s", test.k.Name, err)
		}
		if got != test.want {
			t.Errorf("%s separable %v; want %v", test.k.Name, got, test.want)
		}
	}
}

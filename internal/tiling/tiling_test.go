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

package tiling

import (
	"encoding/json"
	"errors"
	"testing"

	hc "github.com/mlnoga/haloconv/internal"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		w, h, wgx, wgy, f int
		layout            Layout
		deviceWidth       int
		global            [2]int
		localW, localH    int
	}{
		{640, 480, 16, 16, 7, Optimized, 640, [2]int{640, 480}, 22, 22},
		{100, 50, 16, 16, 7, Optimized, 112, [2]int{96, 48}, 22, 22},
		{100, 50, 16, 16, 7, Unoptimized, 100, [2]int{96, 48}, 22, 22},
		{7, 7, 16, 16, 7, Optimized, 16, [2]int{16, 16}, 22, 22},
		{33, 20, 8, 4, 3, Optimized, 40, [2]int{32, 20}, 10, 6},
		{10, 10, 1, 1, 1, Optimized, 10, [2]int{10, 10}, 1, 1},
	}
	for _, test := range tests {
		g, err := Partition(test.w, test.h, test.wgx, test.wgy, test.f, test.layout)
		if err != nil {
			t.Fatalf("Partition(%d,%d,%d,%d,%d) error %s", test.w, test.h, test.wgx, test.wgy, test.f, err)
		}
		if g.DeviceWidth != test.deviceWidth {
			t.Errorf("%s: device width %d; want %d", g, g.DeviceWidth, test.deviceWidth)
		}
		if g.Global != test.global {
			t.Errorf("%s: global %v; want %v", g, g.Global, test.global)
		}
		if g.LocalWidth != test.localW || g.LocalHeight != test.localH {
			t.Errorf("%s: tile %dx%d; want %dx%d", g, g.LocalWidth, g.LocalHeight, test.localW, test.localH)
		}
		if g.Padding != test.f-1 || g.Half != (test.f-1)/2 {
			t.Errorf("%s: padding %d half %d; want %d %d", g, g.Padding, g.Half, test.f-1, (test.f-1)/2)
		}
		if g.Global[0]%g.Local[0] != 0 || g.Global[1]%g.Local[1] != 0 {
			t.Errorf("%s: global not a multiple of local", g)
		}
		if g.Global[0] < g.Width-g.Padding || g.Global[1] < g.Height-g.Padding {
			t.Errorf("%s: global does not cover the interior", g)
		}
		if g.DeviceWidth < g.Width {
			t.Errorf("%s: device width below image width", g)
		}
	}
}

func TestPartitionErrors(t *testing.T) {
	tests := []struct {
		w, h, wgx, wgy, f int
		want              error
	}{
		{6, 100, 16, 16, 7, ErrDegenerateGrid},
		{100, 6, 16, 16, 7, ErrDegenerateGrid},
		{0, 0, 16, 16, 1, ErrDegenerateGrid},
		{100, 100, 16, 16, 4, ErrFilterWidth},
		{100, 100, 16, 16, -3, ErrFilterWidth},
		{100, 100, 0, 16, 7, ErrWorkGroup},
		{100, 100, 16, -1, 7, ErrWorkGroup},
		{100, 100, 1 << 40, 8, 7, ErrWorkGroup},
		{1<<62 + 1, 8, 8, 8, 7, hc.ErrDimensions},
		{1 << 27, 2, 3, 1, 1, hc.ErrDimensions}, // fits, but the padded device rows do not
	}
	for _, test := range tests {
		_, err := Partition(test.w, test.h, test.wgx, test.wgy, test.f, Optimized)
		if !errors.Is(err, test.want) {
			t.Errorf("Partition(%d,%d,%d,%d,%d) = %v; want %v", test.w, test.h, test.wgx, test.wgy, test.f, err, test.want)
		}
	}
}

func TestInterior(t *testing.T) {
	g, err := Partition(20, 10, 4, 4, 5, Optimized)
	if err != nil {
		t.Fatal(err)
	}
	x, y, w, h := g.InteriorRect()
	if x != 2 || y != 2 || w != 16 || h != 6 {
		t.Errorf("InteriorRect() = %d,%d,%d,%d; want 2,2,16,6", x, y, w, h)
	}
	count := 0
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if g.IsInterior(col, row) {
				count++
			}
		}
	}
	if count != g.InteriorPixels() {
		t.Errorf("IsInterior counts %d; want %d", count, g.InteriorPixels())
	}
	if got, want := g.Flops(), float64(16*6*25); got != want {
		t.Errorf("Flops() = %f; want %f", got, want)
	}
	gx, gy := g.Groups()
	if gx != 4 || gy != 2 {
		t.Errorf("Groups() = %d,%d; want 4,2", gx, gy)
	}
	if got := g.LocalMemFloats(); got != 8*8 {
		t.Errorf("LocalMemFloats() = %d; want 64", got)
	}
}

func TestLayoutText(t *testing.T) {
	for _, l := range []Layout{Optimized, Unoptimized} {
		data, err := json.Marshal(l)
		if err != nil {
			t.Fatal(err)
		}
		var back Layout
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back != l {
			t.Errorf("layout %s came back as %s", l, back)
		}
	}
	if _, err := ParseLayout("diagonal"); err == nil {
		t.Errorf("ParseLayout(diagonal) gave no error")
	}
}

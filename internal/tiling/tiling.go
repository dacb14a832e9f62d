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

// Package tiling partitions an image into work-groups for halo-staged stencil evaluation.
package tiling

import (
	"errors"
	"fmt"
	"strings"

	hc "github.com/mlnoga/haloconv/internal"
)

var (
	ErrDegenerateGrid = errors.New("image too small for filter, no interior pixels")
	ErrFilterWidth    = errors.New("filter width must be odd and positive")
	ErrWorkGroup      = errors.New("work-group dimensions must be positive")
)

// Layout of the image in device memory
type Layout int

const (
	// Device rows are padded to a multiple of the horizontal work-group size, transfers are rectangular
	Optimized Layout = iota
	// Device rows have the image width, transfers are flat copies
	Unoptimized
)

func (l Layout) String() string {
	switch l {
	case Optimized:
		return "optimized"
	case Unoptimized:
		return "unoptimized"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// Parses a layout name as used on the command line and in JSON jobs
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "", "optimized", "opt":
		return Optimized, nil
	case "unoptimized", "unopt", "flat":
		return Unoptimized, nil
	}
	return Optimized, fmt.Errorf("unknown layout '%s', want optimized or unoptimized", s)
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Layout) UnmarshalText(text []byte) error {
	parsed, err := ParseLayout(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Tile geometry for one (image size, work-group size, filter width) triple. Derived, never stored
type Geometry struct {
	Width       int    `json:"width"`       // logical image width
	Height      int    `json:"height"`      // logical image height
	FilterWidth int    `json:"filterWidth"` // odd filter width F
	Half        int    `json:"half"`        // (F-1)/2, unfiltered border on each edge
	Padding     int    `json:"padding"`     // F-1, total halo per dimension
	Layout      Layout `json:"layout"`
	DeviceWidth int    `json:"deviceWidth"` // row stride of the device buffers
	Global      [2]int `json:"global"`      // work-item grid covering all interior pixels
	Local       [2]int `json:"local"`       // work-group size
	LocalWidth  int    `json:"localWidth"`  // local tile width including halo
	LocalHeight int    `json:"localHeight"` // local tile height including halo
}

// Computes the tile geometry. Fails if the image has no interior pixels for the given filter
func Partition(width, height, wgx, wgy, filterWidth int, layout Layout) (*Geometry, error) {
	if filterWidth <= 0 || filterWidth%2 == 0 {
		return nil, fmt.Errorf("%w: got %d", ErrFilterWidth, filterWidth)
	}
	if wgx <= 0 || wgy <= 0 || wgx > hc.MaxPixels || wgy > hc.MaxPixels {
		return nil, fmt.Errorf("%w: got %dx%d", ErrWorkGroup, wgx, wgy)
	}
	padding := filterWidth - 1
	if width <= padding || height <= padding {
		return nil, fmt.Errorf("%w: image %dx%d, filter %dx%d", ErrDegenerateGrid, width, height, filterWidth, filterWidth)
	}
	if err := hc.CheckDimensions(width, height, hc.MaxPixels); err != nil {
		return nil, err
	}

	g := &Geometry{
		Width:       width,
		Height:      height,
		FilterWidth: filterWidth,
		Half:        padding / 2,
		Padding:     padding,
		Layout:      layout,
		DeviceWidth: width,
		Global:      [2]int{roundUp(width-padding, wgx), roundUp(height-padding, wgy)},
		Local:       [2]int{wgx, wgy},
		LocalWidth:  wgx + padding,
		LocalHeight: wgy + padding,
	}
	if layout == Optimized {
		g.DeviceWidth = roundUp(width, wgx)
	}
	if err := hc.CheckDimensions(g.DeviceWidth, height, hc.MaxPixels); err != nil {
		return nil, fmt.Errorf("padded device buffer: %w", err)
	}
	return g, nil
}

// Rounds n up to the nearest multiple of m
func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}

// Number of floats in each device image buffer
func (g *Geometry) DeviceFloats() int { return g.DeviceWidth * g.Height }

// Number of floats of local scratch per work-group
func (g *Geometry) LocalMemFloats() int { return g.LocalWidth * g.LocalHeight }

// Number of work-groups along x and y
func (g *Geometry) Groups() (x, y int) {
	return g.Global[0] / g.Local[0], g.Global[1] / g.Local[1]
}

// Work-items per group
func (g *Geometry) WorkGroupSize() int { return g.Local[0] * g.Local[1] }

// Origin and size of the interior region, the only pixels that receive a filter response
func (g *Geometry) InteriorRect() (x, y, width, height int) {
	return g.Half, g.Half, g.Width - g.Padding, g.Height - g.Padding
}

// Number of interior pixels
func (g *Geometry) InteriorPixels() int {
	return (g.Width - g.Padding) * (g.Height - g.Padding)
}

// Reports whether the pixel at (x,y) is an interior pixel
func (g *Geometry) IsInterior(x, y int) bool {
	return x >= g.Half && x < g.Width-g.Half && y >= g.Half && y < g.Height-g.Half
}

// Floating point operations of one pass, counted as one fused multiply-add per filter tap and interior pixel
func (g *Geometry) Flops() float64 {
	return float64(g.InteriorPixels()) * float64(g.FilterWidth*g.FilterWidth)
}

func (g *Geometry) String() string {
	gx, gy := g.Groups()
	return fmt.Sprintf("image %dx%d filter %dx%d layout %s device width %d global %dx%d local %dx%d groups %dx%d tile %dx%d",
		g.Width, g.Height, g.FilterWidth, g.FilterWidth, g.Layout, g.DeviceWidth,
		g.Global[0], g.Global[1], g.Local[0], g.Local[1], gx, gy, g.LocalWidth, g.LocalHeight)
}

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

package ops

import (
	"fmt"
	"path/filepath"
	"strings"

	hc "github.com/mlnoga/haloconv/internal"
	"github.com/mlnoga/haloconv/internal/gray"
	"github.com/mlnoga/haloconv/internal/pnm"
)

// Load a single bitmap from a file and reduce it to grayscale. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Ignores any inputs provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := c.checkPath(op.FileName); err != nil {
		return nil, err
	}
	out := func() (f *Frame, err error) {
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

func (op *OpLoad) Apply(f *Frame, c *Context) (result *Frame, err error) {
	fmt.Fprintf(c.Log, "%d: Reading %s\n", op.ID, op.FileName)
	rgb, err := pnm.ReadFile(op.FileName)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", op.ID, err)
	}
	img := gray.FromRGB(rgb)
	img.ID = op.ID
	fmt.Fprintf(c.Log, "%d: Done reading %s of size %s\n", op.ID, op.FileName, img.DimensionsToString())
	return &Frame{ID: op.ID, FileName: op.FileName, Input: img, Max: rgb.Max}, nil
}

// Load many bitmaps from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if c.checkPath(match) != nil {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			promises, err := NewOpLoad(len(outs), match).MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			outs = append(outs, promises...)
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Largest number of frames one random operator synthesizes
const maxRandomCount = 1024

// Synthesize random bitmaps and reduce them to grayscale. Takes zero inputs, produces Count outputs
type OpRandom struct {
	OpBase
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Max    int    `json:"max"`
	Seed   uint32 `json:"seed"`
	Count  int    `json:"count"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpRandomDefault() }) } // register the operator for JSON decoding

func NewOpRandomDefault() *OpRandom { return NewOpRandom(1024, 768, 1) }

func NewOpRandom(width, height int, seed uint32) *OpRandom {
	return &OpRandom{
		OpBase: OpBase{Type: "random", Active: true},
		Width:  width,
		Height: height,
		Max:    255,
		Seed:   seed,
		Count:  1,
	}
}

func (op *OpRandom) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := hc.CheckDimensions(op.Width, op.Height, c.MaxPixels); err != nil {
		return nil, fmt.Errorf("%s operator: %w", op.Type, err)
	}
	if op.Max <= 0 || op.Max > 65535 || op.Count <= 0 || op.Count > maxRandomCount {
		return nil, fmt.Errorf("%s operator needs max in [1,65535] and count in [1,%d], got max %d count %d",
			op.Type, maxRandomCount, op.Max, op.Count)
	}
	outs = make([]Promise, op.Count)
	for i := range outs {
		id, seed := i, op.Seed+uint32(i)
		outs[i] = func() (*Frame, error) {
			img := gray.FromRGB(pnm.Random(op.Width, op.Height, op.Max, seed))
			img.ID = id
			fmt.Fprintf(c.Log, "%d: Synthesized random %s image from seed %d\n", id, img.DimensionsToString(), seed)
			return &Frame{ID: id, FileName: fmt.Sprintf("random%d", id), Input: img, Max: op.Max}, nil
		}
	}
	return outs, nil
}

// Saves one image of a frame under a given filename, with pattern expansion for %d based on the
// frame id. Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
	Image       string `json:"image"` // input, cpu, device or diff
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("", "device") }

func NewOpSave(filenamePattern, image string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
		Image:       image,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpSave) Apply(f *Frame, c *Context) (result *Frame, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := op.FilePattern
	if strings.Contains(fileName, "%d") {
		fileName = fmt.Sprintf(op.FilePattern, f.ID)
	}
	if err := c.checkPath(fileName); err != nil {
		return nil, err
	}
	max := f.Max
	if max <= 0 {
		max = 255
	}

	if op.Image == "diff" {
		if f.CPU == nil || f.Device == nil {
			return nil, fmt.Errorf("%d: no cpu and device results to diff for %s", f.ID, fileName)
		}
		fmt.Fprintf(c.Log, "%d: Writing %s pixel difference map to %s\n", f.ID, f.CPU.DimensionsToString(), fileName)
		if err := gray.WriteDiffJPGToFile(fileName, f.CPU, f.Device, 0); err != nil {
			return nil, fmt.Errorf("%d: error writing to file %s: %w", f.ID, fileName, err)
		}
		return f, nil
	}

	img, err := op.pick(f)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Writing %s image of %s pixels to %s\n", f.ID, op.Image, img.DimensionsToString(), fileName)
	if err := img.WriteFile(fileName, max); err != nil {
		return nil, fmt.Errorf("%d: error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

func (op *OpSave) pick(f *Frame) (*gray.Image, error) {
	var img *gray.Image
	switch op.Image {
	case "input":
		img = f.Input
	case "cpu":
		img = f.CPU
	case "", "device":
		img = f.Device
	default:
		return nil, fmt.Errorf("%d: unknown image '%s' to save, want input, cpu, device or diff", f.ID, op.Image)
	}
	if img == nil {
		return nil, fmt.Errorf("%d: no %s image to save", f.ID, op.Image)
	}
	return img, nil
}

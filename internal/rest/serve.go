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

// Package rest serves convolution jobs and operator pipelines over HTTP.
package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	hc "github.com/mlnoga/haloconv/internal"
	"github.com/mlnoga/haloconv/internal/device"
	"github.com/mlnoga/haloconv/internal/filter"
	"github.com/mlnoga/haloconv/internal/ops"
	"github.com/mlnoga/haloconv/internal/ops/conv"
	"github.com/mlnoga/haloconv/internal/stencil"
	"github.com/mlnoga/haloconv/web"
)

// Largest synthetic image a client may request, in pixels
const maxRandomPixels = 64 * 1024 * 1024

// Request handlers sharing one device context
type server struct {
	dev *device.Context
}

// Creates the router for the REST API on the given device
func NewRouter(dev *device.Context) *gin.Engine {
	s := &server{dev: dev}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", getIndex)
	r.StaticFS("/js", web.JavascriptFS())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/device", s.getDevice)
			v1.GET("/filters", getFilters)
			v1.POST("/convolve", s.postConvolve)
			v1.POST("/pipeline", s.postPipeline)
		}
	}
	return r
}

// Serves the REST API on the given address until the listener fails
func Serve(addr string, dev *device.Context) error {
	r := NewRouter(dev)
	r.Use(gin.Logger())
	hc.LogPrintf("Serving REST API on %s\n", addr)
	return r.Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (s *server) getDevice(c *gin.Context) {
	c.JSON(http.StatusOK, s.dev.Info())
}

type filterInfo struct {
	Name      string    `json:"name"`
	Width     int       `json:"width"`
	Sum       float32   `json:"sum"`
	Separable bool      `json:"separable"`
	Weights   []float32 `json:"weights"`
}

func getFilters(c *gin.Context) {
	var res []filterInfo
	for _, name := range filter.PresetNames() {
		k, err := filter.Preset(name, 1)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		sep, err := k.Separable(1e-5)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		res = append(res, filterInfo{Name: name, Width: k.Width, Sum: k.Sum(), Separable: sep, Weights: k.Weights})
	}
	c.JSON(http.StatusOK, res)
}

type randomArgs struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   uint32 `json:"seed"`
}

type convolveArgs struct {
	FileName  string         `json:"fileName"`
	Random    *randomArgs    `json:"random"`
	Benchmark conv.Benchmark `json:"benchmark"`
}

// Runs a benchmark on one file or synthetic image, and returns the report and log as JSON
func (s *server) postConvolve(c *gin.Context) {
	args := convolveArgs{Benchmark: defaultBenchmark()}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var source ops.Operator
	switch {
	case args.Random != nil:
		if err := hc.CheckDimensions(args.Random.Width, args.Random.Height, maxRandomPixels); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		source = ops.NewOpRandom(args.Random.Width, args.Random.Height, args.Random.Seed)
	case args.FileName != "":
		source = ops.NewOpLoad(0, args.FileName)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "need fileName or random"})
		return
	}

	log := &bytes.Buffer{}
	frames, err := s.run(ops.NewOpSequence(source, conv.NewOpBenchmark(args.Benchmark)), log)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "log": log.String()})
		return
	}
	reports := make([]ops.Report, len(frames))
	for i, f := range frames {
		reports[i] = f.Report()
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "log": log.String()})
}

// Runs an operator sequence, streaming the log as plain text
func (s *server) postPipeline(c *gin.Context) {
	var seq ops.OpSequence
	if err := c.ShouldBindJSON(&seq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logWriter := c.Writer
	logWriter.Header().Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", &seq); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	frames, err := s.run(&seq, logWriter)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	} else {
		fmt.Fprintf(logWriter, "Done, %d frames.\n", len(frames))
	}
	logWriter.Flush()
}

// Materializes the operator on a fresh context with restricted paths
func (s *server) run(op ops.Operator, log io.Writer) ([]*ops.Frame, error) {
	ctx := ops.NewContext(log, s.dev)
	ctx.RestrictPaths = true
	ctx.MaxPixels = maxRandomPixels
	defer hc.ClearPools() // request sizes vary, so pooled buffers are rarely reused
	defer ctx.Release()
	promises, err := op.MakePromises(nil, ctx)
	if err != nil {
		return nil, err
	}
	return ops.MaterializeAll(promises, ctx.MaxThreads, false)
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

func defaultBenchmark() conv.Benchmark {
	return conv.Benchmark{
		Preset:    filter.DefaultPreset,
		Sigma:     1,
		Job:       stencil.DefaultJob,
		CPULoops:  1,
		Tolerance: conv.DefaultTolerance,
	}
}

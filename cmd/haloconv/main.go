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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	hc "github.com/mlnoga/haloconv/internal"
	"github.com/mlnoga/haloconv/internal/device"
	"github.com/mlnoga/haloconv/internal/filter"
	"github.com/mlnoga/haloconv/internal/ops"
	"github.com/mlnoga/haloconv/internal/ops/conv"
	"github.com/mlnoga/haloconv/internal/pnm"
	"github.com/mlnoga/haloconv/internal/rest"
	"github.com/mlnoga/haloconv/internal/stencil"
	"github.com/mlnoga/haloconv/internal/tiling"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var outCPU = flag.String("outCPU", "output_cpu.ppm", "save reference result to `file`, blank=don't")
var outDevice = flag.String("outDevice", "output_cl.ppm", "save tiled result to `file`, blank=don't")
var diff = flag.String("diff", "", "save false-color difference map of the two results as JPEG to `file`, blank=don't")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of device output file with .log")

var loops = flag.Int("loops", 1, "number of tiled kernel launches to time")
var cpuLoops = flag.Int("cpuLoops", 1, "number of reference convolutions to time")
var wgx = flag.Int("wgx", stencil.DefaultJob.WGX, "work-group width")
var wgy = flag.Int("wgy", stencil.DefaultJob.WGY, "work-group height")
var layout = flag.String("layout", "optimized", "device buffer layout, optimized (rows padded to work-group width) or unoptimized")

var filterName = flag.String("filter", filter.DefaultPreset, "filter preset, see the filters command")
var sigma = flag.Float64("sigma", 1, "sigma for the gaussian filter preset")
var tol = flag.Float64("tol", float64(conv.DefaultTolerance), "maximum difference of interior samples, relative above magnitude one")

var random = flag.String("random", "", "synthesize a random input of the given `WxH` instead of loading files")
var seed = flag.Uint("seed", 1, "seed for synthetic inputs")

var deviceMem = flag.Uint64("deviceMem", 0, "device global memory budget in MiB, 0=physical memory")
var computeUnits = flag.Int("computeUnits", 0, "number of concurrently executing work-groups, 0=logical cores")

var addr = flag.String("addr", ":8080", "listen address for the serve command")
var chroot = flag.String("chroot", "", "chroot to the given directory before serving, blank=don't")
var setuid = flag.Int("setuid", -1, "switch to the given user ID before serving, -1=don't")

func main() {
	logWriter := hc.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `Haloconv Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (run|device|filters|serve|legal|version|help) (img0.ppm ... imgn.ppm) [loops]

Commands:
  run     Convolve inputs on the CPU and with the tiled device kernel, compare and report timings
  device  Show device and kernel information
  filters List filter presets
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *outDevice != "" {
			*log = strings.TrimSuffix(*outDevice, filepath.Ext(*outDevice)) + ".log"
		} else {
			*log = ""
		}
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}
	if *log != "" && args[0] == "run" {
		if err := hc.LogAlsoToFile(*log); err != nil {
			hc.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			hc.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			hc.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	switch args[0] {
	case "run":
		err = cmdRun(args[1:], logWriter)

	case "device":
		err = cmdDevice(logWriter)

	case "filters":
		err = cmdFilters(logWriter)

	case "serve":
		dev := newDevice()
		if err = rest.MakeSandbox(*chroot, *setuid); err == nil {
			err = rest.Serve(*addr, dev)
		}

	case "legal":
		cmdLegal()

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	if args[0] == "run" {
		fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	}

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			hc.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			hc.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		hc.LogFatalf("Error: %s\n", err.Error())
	}
	hc.LogSync()
}

func newDevice() *device.Context {
	return device.NewContext(device.Options{
		GlobalMemBytes: *deviceMem * 1024 * 1024,
		ComputeUnits:   *computeUnits,
	})
}

func job() (stencil.Job, error) {
	l, err := tiling.ParseLayout(*layout)
	if err != nil {
		return stencil.Job{}, err
	}
	return stencil.Job{WGX: *wgx, WGY: *wgy, Layout: l, Loops: *loops}, nil
}

// Runs the benchmark on the given files, or on a random input. A trailing integer argument overrides -loops
func cmdRun(args []string, logWriter io.Writer) error {
	if len(args) > 1 {
		var n int
		if _, err := fmt.Sscanf(args[len(args)-1], "%d", &n); err == nil {
			*loops = n
			args = args[:len(args)-1]
		}
	}
	j, err := job()
	if err != nil {
		return err
	}

	var source ops.Operator
	if *random != "" {
		w, h, err := pnm.ParseDimensions(*random)
		if err != nil {
			return err
		}
		source = ops.NewOpRandom(w, h, uint32(*seed))
	} else if len(args) > 0 {
		source = ops.NewOpLoadMany(args)
	} else {
		return fmt.Errorf("need input files or -random WxH")
	}

	bench := conv.Benchmark{
		Preset:    *filterName,
		Sigma:     float32(*sigma),
		Job:       j,
		CPULoops:  *cpuLoops,
		Tolerance: float32(*tol),
		OutCPU:    *outCPU,
		OutDevice: *outDevice,
		OutDiff:   *diff,
	}
	seq := ops.NewOpSequence(source, conv.NewOpBenchmark(bench))
	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Running with these settings:\n%s\n", string(m))

	dev := newDevice()
	fmt.Fprintf(logWriter, "%s\n", dev.Info())
	c := ops.NewContext(logWriter, dev)
	defer c.Release()

	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	// frames run one at a time so device timings are not disturbed
	frames, err := ops.MaterializeAll(promises, 1, false)
	if err != nil {
		return err
	}
	mismatches := 0
	for _, f := range frames {
		if f.Comparison != nil && !f.Comparison.Match() {
			mismatches++
		}
	}
	if mismatches > 0 {
		return fmt.Errorf("%d of %d frames mismatch", mismatches, len(frames))
	}
	return nil
}

// Prints device properties and the resource usage of the convolution kernel for the current flags
func cmdDevice(logWriter io.Writer) error {
	dev := newDevice()
	fmt.Fprintf(logWriter, "%s\n", dev.Info())

	k, err := filter.Preset(*filterName, float32(*sigma))
	if err != nil {
		return err
	}
	j, err := job()
	if err != nil {
		return err
	}
	w, h := 1024, 768
	if *random != "" {
		if w, h, err = pnm.ParseDimensions(*random); err != nil {
			return err
		}
	}
	g, err := tiling.Partition(w, h, j.WGX, j.WGY, k.Width, j.Layout)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Tiling %s\n", g)
	fmt.Fprintf(logWriter, "%s", dev.KernelInfo(stencil.NewKernel(g, nil, nil, nil)))
	return nil
}

func cmdFilters(logWriter io.Writer) error {
	for _, name := range filter.PresetNames() {
		k, err := filter.Preset(name, float32(*sigma))
		if err != nil {
			return err
		}
		sep, err := k.Separable(1e-6)
		if err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "%-12s width %2d sum %8.4f separable %v\n", name, k.Width, k.Sum(), sep)
	}
	return nil
}

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/MeKo-Tech/pogocls/internal/testutil"
)

// Classifier is the part of the orientation classifier a benchmark drives.
type Classifier interface {
	Classify(ctx context.Context, images []image.Image) (*orientation.BatchResult, error)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Total allocated bytes (cumulative)
	SysBytes        uint64  // Total bytes from system
	NumGC           uint32  // Number of GC runs
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// String returns a formatted string representation of memory stats.
func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024,
		m.TotalAllocBytes/1024,
		m.SysBytes/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}

// Options controls a benchmark run.
type Options struct {
	Name       string
	Iterations int
	Warmup     int // untimed iterations before measuring
}

// Result holds the result of a benchmark run.
type Result struct {
	Name         string          `json:"name"`
	Images       int             `json:"images"`
	Iterations   int             `json:"iterations"`
	Total        time.Duration   `json:"total_ns"`
	Inference    time.Duration   `json:"inference_ns"` // summed classifier-reported time
	Latencies    []time.Duration `json:"-"`
	Rotated      int             `json:"rotated"` // rotations in the last iteration
	MemoryBefore MemoryStats     `json:"-"`
	MemoryAfter  MemoryStats     `json:"-"`
}

// Mean is the average wall time of one iteration.
func (r Result) Mean() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Iterations)
}

// Percentile returns the p-th percentile (0..100) of iteration latencies
// using the nearest-rank method.
func (r Result) Percentile(p float64) time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(r.Latencies)
	slices.Sort(sorted)
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

// Throughput is classified images per second of wall time.
func (r Result) Throughput() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Images*r.Iterations) / r.Total.Seconds()
}

// AllocDeltaKB is the change in live heap over the run.
func (r Result) AllocDeltaKB() int64 {
	return (int64(r.MemoryAfter.AllocBytes) - int64(r.MemoryBefore.AllocBytes)) / 1024 //nolint:gosec // G115: display only
}

// String returns a one-line summary.
func (r Result) String() string {
	return fmt.Sprintf("%s: %d images x %d iterations, avg: %v, p50: %v, p95: %v, %.1f img/s, mem: %+d KB",
		r.Name, r.Images, r.Iterations, r.Mean(), r.Percentile(50), r.Percentile(95),
		r.Throughput(), r.AllocDeltaKB())
}

// Run classifies images opts.Iterations times and records per-iteration
// latencies. The first classifier error aborts the run.
func Run(ctx context.Context, cls Classifier, images []image.Image, opts Options) (Result, error) {
	if cls == nil {
		return Result{}, errors.New("nil classifier")
	}
	if len(images) == 0 {
		return Result{}, errors.New("no images to benchmark")
	}
	if opts.Iterations <= 0 {
		return Result{}, fmt.Errorf("iterations must be positive, got %d", opts.Iterations)
	}

	for range opts.Warmup {
		if _, err := cls.Classify(ctx, images); err != nil {
			return Result{}, fmt.Errorf("warmup: %w", err)
		}
	}

	// Force garbage collection before measuring
	runtime.GC()
	res := Result{
		Name:         opts.Name,
		Images:       len(images),
		Iterations:   opts.Iterations,
		Latencies:    make([]time.Duration, 0, opts.Iterations),
		MemoryBefore: GetMemoryStats(),
	}

	for range opts.Iterations {
		start := time.Now()
		out, err := cls.Classify(ctx, images)
		if err != nil {
			return res, err
		}
		d := time.Since(start)
		res.Total += d
		res.Latencies = append(res.Latencies, d)
		res.Inference += out.Elapsed

		res.Rotated = 0
		for _, r := range out.Results {
			if r.Rotated {
				res.Rotated++
			}
		}
	}

	res.MemoryAfter = GetMemoryStats()
	return res, nil
}

// Comparison holds a CPU and a GPU run over the same images.
type Comparison struct {
	CPU          Result
	GPU          Result
	GPUAvailable bool
}

// Speedup is CPU time divided by GPU time; 0 when the GPU did not run.
func (c Comparison) Speedup() float64 {
	if !c.GPUAvailable || c.GPU.Total <= 0 {
		return 0
	}
	return float64(c.CPU.Total) / float64(c.GPU.Total)
}

// String returns a formatted representation of the GPU vs CPU comparison.
func (c Comparison) String() string {
	if !c.GPUAvailable {
		return fmt.Sprintf("GPU not available, CPU only: %v", c.CPU.Mean())
	}

	speedup := c.Speedup()
	speedupStr := "same speed"
	if speedup > 1.0 {
		speedupStr = fmt.Sprintf("%.2fx faster", speedup)
	} else if speedup < 1.0 && speedup > 0 {
		speedupStr = fmt.Sprintf("%.2fx slower", 1.0/speedup)
	}
	return fmt.Sprintf("CPU: %v, GPU: %v (%s)", c.CPU.Mean(), c.GPU.Mean(), speedupStr)
}

// SyntheticLines renders n text lines of varying length. Every flipEvery-th
// line is upside down; flipEvery <= 0 keeps all lines upright.
func SyntheticLines(n, flipEvery int) ([]image.Image, error) {
	words := []string{"orientation", "text", "line", "classifier", "batch", "sample", "upright", "crop"}
	cfg := testutil.DefaultTextLineConfig()

	images := make([]image.Image, 0, n)
	for i := range n {
		// 1..len(words) words so aspect ratios differ across the batch
		count := i%len(words) + 1
		parts := make([]string, count)
		for j := range parts {
			parts[j] = words[(i+j)%len(words)]
		}
		cfg.Text = strings.Join(parts, " ")
		cfg.Flipped = flipEvery > 0 && i%flipEvery == flipEvery-1

		img, err := testutil.GenerateTextLine(cfg)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// PrintResults writes a results table with system information.
func PrintResults(w io.Writer, results []Result) {
	_, _ = fmt.Fprintln(w, "Benchmark Results:")
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 18))
	_, _ = fmt.Fprintf(w, "GOOS: %s, GOARCH: %s, NumCPU: %d, Go: %s\n",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())
	for _, r := range results {
		_, _ = fmt.Fprintln(w, r.String())
	}
}

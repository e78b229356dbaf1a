// Package complexity estimates the time complexity class of a solution by
// running it on growing inputs and fitting the observed growth.
//
// The estimate is a heuristic. Sandbox start-up and scheduling noise bias
// small inputs, so every Estimate is marked approximate.
package complexity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/isdmx/challengebox/errkind"
)

// Class is an asymptotic growth class.
type Class int

// Classes in order of increasing growth. Fit prefers the earlier class on a tie.
const (
	Constant Class = iota
	Logarithmic
	Linear
	Linearithmic
	Quadratic
	Cubic
	Exponential
)

// Classes lists every class in order of increasing growth.
var Classes = []Class{Constant, Logarithmic, Linear, Linearithmic, Quadratic, Cubic, Exponential}

func (c Class) String() string {
	switch c {
	case Constant:
		return "constant"
	case Logarithmic:
		return "logarithmic"
	case Linear:
		return "linear"
	case Linearithmic:
		return "linearithmic"
	case Quadratic:
		return "quadratic"
	case Cubic:
		return "cubic"
	case Exponential:
		return "exponential"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Notation returns the big-O notation of the class.
func (c Class) Notation() string {
	switch c {
	case Constant:
		return "O(1)"
	case Logarithmic:
		return "O(log n)"
	case Linear:
		return "O(n)"
	case Linearithmic:
		return "O(n log n)"
	case Quadratic:
		return "O(n^2)"
	case Cubic:
		return "O(n^3)"
	case Exponential:
		return "O(2^n)"
	default:
		return "O(?)"
	}
}

// MarshalText encodes the class by name.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// logGrowth returns ln(f(b) / f(a)) for the class growth function f.
func (c Class) logGrowth(a, b float64) float64 {
	switch c {
	case Constant:
		return 0
	case Logarithmic:
		return math.Log(logOf(b) / logOf(a))
	case Linear:
		return math.Log(b / a)
	case Linearithmic:
		return math.Log(b*logOf(b)) - math.Log(a*logOf(a))
	case Quadratic:
		return 2 * math.Log(b/a)
	case Cubic:
		return 3 * math.Log(b/a)
	case Exponential:
		return (b - a) * math.Ln2
	default:
		return math.Inf(1)
	}
}

// logOf keeps log n positive for n < 2.
func logOf(n float64) float64 {
	return math.Log(math.Max(n, 2))
}

// Sample is one measured input size.
type Sample struct {
	Size     int           `json:"size"`
	Duration time.Duration `json:"duration"`
}

// Estimate is the result of a fit.
type Estimate struct {
	Class Class `json:"class"`
	// Confidence is exp(-mean deviation), 1 for a perfect fit.
	Confidence float64 `json:"confidence"`
	// Deviations holds the mean deviation of every class, keyed by name.
	Deviations  map[string]float64 `json:"deviations"`
	Samples     []Sample           `json:"samples"`
	Approximate bool               `json:"approximate"`
}

const tieEpsilon = 1e-9

// Fit picks the class whose theoretical growth between successive samples
// is closest to the observed growth. Samples are sorted by size; samples
// with a repeated size or non-positive duration are ignored.
func Fit(samples []Sample) (Estimate, error) {
	usable := usableSamples(samples)
	if len(usable) < 2 {
		return Estimate{}, errkind.Configf("need at least 2 usable samples with distinct sizes, got %d", len(usable))
	}

	estimate := Estimate{
		Deviations:  make(map[string]float64, len(Classes)),
		Samples:     usable,
		Approximate: true,
	}
	best := math.Inf(1)
	for _, c := range Classes {
		var total float64
		for i := 1; i < len(usable); i++ {
			a, b := usable[i-1], usable[i]
			observed := math.Log(float64(b.Duration) / float64(a.Duration))
			total += math.Abs(observed - c.logGrowth(float64(a.Size), float64(b.Size)))
		}
		mean := total / float64(len(usable)-1)
		estimate.Deviations[c.String()] = mean
		if mean < best-tieEpsilon {
			best = mean
			estimate.Class = c
		}
	}
	estimate.Confidence = math.Exp(-best)
	return estimate, nil
}

func usableSamples(samples []Sample) []Sample {
	sorted := append([]Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Size < sorted[j].Size })

	usable := make([]Sample, 0, len(sorted))
	for _, s := range sorted {
		if s.Size <= 0 || s.Duration <= 0 {
			continue
		}
		if n := len(usable); n > 0 && usable[n-1].Size == s.Size {
			continue
		}
		usable = append(usable, s)
	}
	return usable
}

package complexity

import (
	"fmt"
	"math"
	"sort"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/errkind"
)

// SizeStrategy chooses the input sizes to measure.
type SizeStrategy interface {
	Sizes() ([]int, error)
}

// Explicit measures exactly the listed sizes, in ascending order.
type Explicit []int

func (e Explicit) Sizes() ([]int, error) {
	sizes := append([]int(nil), e...)
	sort.Ints(sizes)
	if err := checkSizes(sizes); err != nil {
		return nil, err
	}
	return sizes, nil
}

// Doubling measures Start, 2*Start, 4*Start and so on, Count sizes in total.
type Doubling struct {
	Start int
	Count int
}

func (d Doubling) Sizes() ([]int, error) {
	if d.Start <= 0 || d.Count < 2 {
		return nil, errkind.Configf("doubling sizes need a positive start and a count of at least 2, got: %d, %d", d.Start, d.Count)
	}
	if d.Count > 63 || d.Start > math.MaxInt>>(d.Count-1) {
		return nil, errkind.Configf("doubling %d sizes from %d overflows", d.Count, d.Start)
	}
	sizes := make([]int, d.Count)
	for i, n := 0, d.Start; i < d.Count; i, n = i+1, n*2 {
		sizes[i] = n
	}
	return sizes, nil
}

// Arithmetic measures Start, Start+Step and so on, Count sizes in total.
type Arithmetic struct {
	Start int
	Step  int
	Count int
}

func (l Arithmetic) Sizes() ([]int, error) {
	if l.Start <= 0 || l.Step <= 0 || l.Count < 2 {
		return nil, errkind.Configf("linear sizes need a positive start and step and a count of at least 2, got: %d, %d, %d", l.Start, l.Step, l.Count)
	}
	if l.Step > (math.MaxInt-l.Start)/(l.Count-1) {
		return nil, errkind.Configf("linear %d sizes from %d step %d overflows", l.Count, l.Start, l.Step)
	}
	sizes := make([]int, l.Count)
	for i := range sizes {
		sizes[i] = l.Start + i*l.Step
	}
	return sizes, nil
}

func checkSizes(sizes []int) error {
	if len(sizes) < 2 {
		return errkind.Configf("need at least 2 input sizes, got %d", len(sizes))
	}
	for i, n := range sizes {
		if n <= 0 {
			return errkind.Configf("input sizes must be positive, got %d", n)
		}
		if i > 0 && sizes[i-1] == n {
			return errkind.Configf("duplicate input size %d", n)
		}
	}
	return nil
}

// StrategyFromConfig builds the strategy named by cfg.Strategy.
func StrategyFromConfig(cfg config.AnalyzeConfig) (SizeStrategy, error) {
	switch cfg.Strategy {
	case "", "doubling":
		return Doubling{Start: cfg.Start, Count: cfg.Count}, nil
	case "linear":
		return Arithmetic{Start: cfg.Start, Step: cfg.Step, Count: cfg.Count}, nil
	case "explicit":
		return Explicit(cfg.Sizes), nil
	default:
		return nil, errkind.Configf("unknown size strategy %q", cfg.Strategy)
	}
}

func describe(s SizeStrategy) string {
	switch v := s.(type) {
	case Doubling:
		return fmt.Sprintf("doubling from %d", v.Start)
	case Arithmetic:
		return fmt.Sprintf("linear from %d step %d", v.Start, v.Step)
	case Explicit:
		return "explicit"
	default:
		return fmt.Sprintf("%T", s)
	}
}

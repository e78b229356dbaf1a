package complexity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/isdmx/challengebox/errkind"
)

// InputGenerator produces the arguments for one input size. Generators are
// deterministic for a given size.
type InputGenerator interface {
	Generate(size int) ([]json.RawMessage, error)
}

// IntArray passes one array of size random integers in [Min, Max],
// followed by Extra.
type IntArray struct {
	Min   int
	Max   int
	Seed  uint64
	Extra []json.RawMessage
}

func (g IntArray) Generate(size int) ([]json.RawMessage, error) {
	if g.Max < g.Min {
		return nil, errkind.Configf("int array generator: max %d below min %d", g.Max, g.Min)
	}
	rng := rand.New(rand.NewPCG(g.Seed, uint64(size)))
	values := make([]int, size)
	span := int64(g.Max) - int64(g.Min) + 1
	for i := range values {
		values[i] = g.Min + int(rng.Int64N(span))
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return append([]json.RawMessage{data}, g.Extra...), nil
}

// SizeArg passes the size itself, e.g. for fib(n), followed by Extra.
type SizeArg struct {
	Extra []json.RawMessage
}

func (g SizeArg) Generate(size int) ([]json.RawMessage, error) {
	data, err := json.Marshal(size)
	if err != nil {
		return nil, err
	}
	return append([]json.RawMessage{data}, g.Extra...), nil
}

// String passes one random string of size characters drawn from Alphabet.
type String struct {
	Alphabet string
	Seed     uint64
	Extra    []json.RawMessage
}

const defaultAlphabet = "abcdefghijklmnopqrstuvwxyz"

func (g String) Generate(size int) ([]json.RawMessage, error) {
	alphabet := []rune(g.Alphabet)
	if len(alphabet) == 0 {
		alphabet = []rune(defaultAlphabet)
	}
	rng := rand.New(rand.NewPCG(g.Seed, uint64(size)))
	var sb strings.Builder
	sb.Grow(size)
	for i := 0; i < size; i++ {
		sb.WriteRune(alphabet[rng.IntN(len(alphabet))])
	}
	data, err := json.Marshal(sb.String())
	if err != nil {
		return nil, err
	}
	return append([]json.RawMessage{data}, g.Extra...), nil
}

// Settings is the optional complexity.json of a challenge.
type Settings struct {
	// Generator is "int_array" (default), "size" or "string".
	Generator string            `json:"generator"`
	Min       *int              `json:"min"`
	Max       *int              `json:"max"`
	Seed      uint64            `json:"seed"`
	Alphabet  string            `json:"alphabet"`
	ExtraArgs []json.RawMessage `json:"extraArgs"`
	// Sizes, when set, overrides the configured size strategy.
	Sizes   []int `json:"sizes"`
	Repeats int   `json:"repeats"`
}

// Defaults for the int array generator.
const (
	DefaultMin  = -1000
	DefaultMax  = 1000
	DefaultSeed = 42
)

// LoadSettings reads complexity.json. A missing file yields zero Settings.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("failed to read complexity settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, errkind.Configf("%s: %v", path, err)
	}
	return s, nil
}

// NewGenerator builds the generator described by s.
func (s Settings) NewGenerator() (InputGenerator, error) {
	seed := s.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	switch s.Generator {
	case "", "int_array":
		g := IntArray{Min: DefaultMin, Max: DefaultMax, Seed: seed, Extra: s.ExtraArgs}
		if s.Min != nil {
			g.Min = *s.Min
		}
		if s.Max != nil {
			g.Max = *s.Max
		}
		if g.Max < g.Min {
			return nil, errkind.Configf("complexity generator: max %d below min %d", g.Max, g.Min)
		}
		return g, nil
	case "size":
		return SizeArg{Extra: s.ExtraArgs}, nil
	case "string":
		return String{Alphabet: s.Alphabet, Seed: seed, Extra: s.ExtraArgs}, nil
	default:
		return nil, errkind.Configf("unknown complexity generator %q", s.Generator)
	}
}

package challenge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/isdmx/challengebox/errkind"
)

// Mode selects how actual and expected values are compared.
type Mode string

const (
	ModeExact     Mode = "exact"
	ModeUnordered Mode = "unordered"
	ModeTolerance Mode = "tolerance"
)

// DefaultTolerance applies to float comparisons when a case sets none.
const DefaultTolerance = 1e-9

// TestCase is one input/expected pair. Index is 1-based and follows the
// order of the testcases file.
type TestCase struct {
	Index       int               `json:"index"`
	Description string            `json:"description,omitempty"`
	Input       []json.RawMessage `json:"input"`
	Expected    json.RawMessage   `json:"expected"`
	Mode        Mode              `json:"comparisonMode"`
	Tolerance   float64           `json:"tolerance,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
}

// Implementation holds per-language settings embedded in a testcases file.
type Implementation struct {
	Function string `json:"function"`
}

// Suite is the parsed content of a testcases file.
type Suite struct {
	Cases           []TestCase
	Implementations map[string]Implementation
}

type fileCase struct {
	Input          json.RawMessage `json:"input"`
	Expected       json.RawMessage `json:"expected"`
	Output         json.RawMessage `json:"output,omitempty"`
	Description    string          `json:"description,omitempty"`
	ComparisonMode string          `json:"comparisonMode,omitempty"`
	Tolerance      *float64        `json:"tolerance,omitempty"`
	TimeoutMs      int             `json:"timeoutMs,omitempty"`
}

type fileDocument struct {
	Testcases       []fileCase                `json:"testcases"`
	Implementations map[string]Implementation `json:"implementations"`
}

// LoadSuite reads a testcases file.
func LoadSuite(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Suite{}, errkind.Configf("testcases file %s not found", path)
		}
		return Suite{}, fmt.Errorf("failed to read testcases: %w", err)
	}
	suite, err := ParseSuite(data)
	if err != nil {
		return Suite{}, fmt.Errorf("%s: %w", path, err)
	}
	return suite, nil
}

// ParseSuite decodes either a bare array of cases or an object with a
// "testcases" array and optional "implementations".
func ParseSuite(data []byte) (Suite, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Suite{}, errkind.Configf("empty testcases file")
	}

	var doc fileDocument
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &doc.Testcases); err != nil {
			return Suite{}, errkind.Configf("malformed testcases: %v", err)
		}
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Suite{}, errkind.Configf("malformed testcases: %v", err)
	}

	suite := Suite{Implementations: doc.Implementations}
	for i, fc := range doc.Testcases {
		tc, err := fc.toTestCase(i + 1)
		if err != nil {
			return Suite{}, err
		}
		suite.Cases = append(suite.Cases, tc)
	}
	return suite, nil
}

func (fc fileCase) toTestCase(index int) (TestCase, error) {
	tc := TestCase{
		Index:       index,
		Description: fc.Description,
		Tolerance:   DefaultTolerance,
		Timeout:     time.Duration(fc.TimeoutMs) * time.Millisecond,
	}

	switch input := bytes.TrimSpace(fc.Input); {
	case len(input) == 0 || string(input) == "null":
		tc.Input = []json.RawMessage{}
	case input[0] == '[':
		if err := json.Unmarshal(input, &tc.Input); err != nil {
			return TestCase{}, errkind.Configf("case %d: malformed input: %v", index, err)
		}
	default:
		tc.Input = []json.RawMessage{input}
	}

	expected := fc.Expected
	if len(expected) == 0 {
		expected = fc.Output
	}
	if len(expected) == 0 {
		return TestCase{}, errkind.Configf("case %d: missing expected output", index)
	}
	tc.Expected = expected

	mode, err := ParseMode(fc.ComparisonMode)
	if err != nil {
		return TestCase{}, errkind.Configf("case %d: %v", index, err)
	}
	tc.Mode = mode

	if fc.Tolerance != nil {
		if *fc.Tolerance < 0 {
			return TestCase{}, errkind.Configf("case %d: tolerance must not be negative", index)
		}
		tc.Tolerance = *fc.Tolerance
	}
	if fc.TimeoutMs < 0 {
		return TestCase{}, errkind.Configf("case %d: timeoutMs must not be negative", index)
	}
	return tc, nil
}

// ParseMode accepts the short and long spellings of each comparison mode.
// An empty string is ModeExact.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact":
		return ModeExact, nil
	case "unordered", "unordered-collection", "unordered_collection", "set", "multiset":
		return ModeUnordered, nil
	case "tolerance", "numeric-tolerance", "numeric_tolerance", "approx":
		return ModeTolerance, nil
	default:
		return "", fmt.Errorf("unknown comparison mode %q", s)
	}
}

// MarshalSuite encodes cases in the object form read by ParseSuite.
func MarshalSuite(cases []TestCase, implementations map[string]Implementation) ([]byte, error) {
	doc := struct {
		Testcases       []fileCase                `json:"testcases"`
		Implementations map[string]Implementation `json:"implementations,omitempty"`
	}{Implementations: implementations}

	for _, tc := range cases {
		input, err := json.Marshal(tc.Input)
		if err != nil {
			return nil, err
		}
		fc := fileCase{
			Input:       input,
			Expected:    tc.Expected,
			Description: tc.Description,
			TimeoutMs:   int(tc.Timeout / time.Millisecond),
		}
		if tc.Mode != "" && tc.Mode != ModeExact {
			fc.ComparisonMode = string(tc.Mode)
		}
		if tc.Tolerance > 0 && tc.Tolerance != DefaultTolerance {
			tolerance := tc.Tolerance
			fc.Tolerance = &tolerance
		}
		doc.Testcases = append(doc.Testcases, fc)
	}
	if doc.Testcases == nil {
		doc.Testcases = []fileCase{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

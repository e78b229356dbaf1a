package challenge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// exactFloatTolerance absorbs float formatting differences between
// languages in exact mode.
const exactFloatTolerance = 1e-9

// Comparison is the result of comparing an actual value with the expected one.
type Comparison struct {
	Equal bool
	// Diff describes the first difference found. Empty when Equal.
	Diff string
}

// Compare compares actual with the case's expected value using the case's mode.
func Compare(tc TestCase, actual json.RawMessage) (Comparison, error) {
	want, err := decode(tc.Expected)
	if err != nil {
		return Comparison{}, fmt.Errorf("case %d: malformed expected value: %w", tc.Index, err)
	}
	got, err := decode(actual)
	if err != nil {
		return Comparison{Diff: fmt.Sprintf("solution returned malformed JSON: %v", err)}, nil
	}

	var diff string
	switch tc.Mode {
	case ModeUnordered:
		diff = diffUnordered(want, got)
	case ModeTolerance:
		tolerance := tc.Tolerance
		if tolerance <= 0 {
			tolerance = DefaultTolerance
		}
		diff = diffValues("", want, got, tolerance)
	default:
		diff = diffValues("", want, got, exactFloatTolerance)
	}
	return Comparison{Equal: diff == "", Diff: diff}, nil
}

func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func diffValues(path string, want, got any, tolerance float64) string {
	switch w := want.(type) {
	case json.Number:
		g, ok := got.(json.Number)
		if !ok {
			return mismatch(path, want, got)
		}
		if !numbersEqual(w, g, tolerance) {
			return mismatch(path, want, got)
		}
		return ""
	case string:
		g, ok := got.(string)
		if !ok || strings.TrimSpace(w) != strings.TrimSpace(g) {
			return mismatch(path, want, got)
		}
		return ""
	case []any:
		g, ok := got.([]any)
		if !ok {
			return mismatch(path, want, got)
		}
		if len(w) != len(g) {
			return fmt.Sprintf("%slength %d, expected %d", at(path), len(g), len(w))
		}
		for i := range w {
			if d := diffValues(fmt.Sprintf("%s[%d]", path, i), w[i], g[i], tolerance); d != "" {
				return d
			}
		}
		return ""
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return mismatch(path, want, got)
		}
		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			gv, present := g[k]
			if !present {
				return fmt.Sprintf("%smissing key %q", at(path), k)
			}
			if d := diffValues(path+"."+k, w[k], gv, tolerance); d != "" {
				return d
			}
		}
		for k := range g {
			if _, present := w[k]; !present {
				return fmt.Sprintf("%sunexpected key %q", at(path), k)
			}
		}
		return ""
	default:
		// bool and null
		if want != got {
			return mismatch(path, want, got)
		}
		return ""
	}
}

func numbersEqual(a, b json.Number, tolerance float64) bool {
	ai, errA := strconv.ParseInt(a.String(), 10, 64)
	bi, errB := strconv.ParseInt(b.String(), 10, 64)
	if errA == nil && errB == nil && tolerance == exactFloatTolerance {
		return ai == bi
	}
	af, errA := a.Float64()
	bf, errB := b.Float64()
	if errA != nil || errB != nil {
		return a.String() == b.String()
	}
	if af == bf {
		return true
	}
	return math.Abs(af-bf) <= tolerance
}

// diffUnordered compares top-level arrays as multisets. Non-array values
// fall back to exact comparison.
func diffUnordered(want, got any) string {
	w, wok := want.([]any)
	g, gok := got.([]any)
	if !wok || !gok {
		return diffValues("", want, got, exactFloatTolerance)
	}
	if len(w) != len(g) {
		return fmt.Sprintf("length %d, expected %d", len(g), len(w))
	}

	// Elements match under exact-mode rules.
	matched := make([]bool, len(w))
	for _, v := range g {
		found := false
		for i, candidate := range w {
			if !matched[i] && diffValues("", candidate, v, exactFloatTolerance) == "" {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("unexpected element %s", canonical(v))
		}
	}
	return ""
}

// canonical renders v with sorted object keys, trimmed strings and
// normalised numbers.
func canonical(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
			return
		}
		sb.WriteString(x.String())
	case string:
		sb.WriteString(strconv.Quote(strings.TrimSpace(x)))
	case []any:
		sb.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			writeCanonical(sb, x[k])
		}
		sb.WriteByte('}')
	default:
		data, _ := json.Marshal(x)
		sb.Write(data)
	}
}

func mismatch(path string, want, got any) string {
	return fmt.Sprintf("%sgot %s, expected %s", at(path), canonical(got), canonical(want))
}

func at(path string) string {
	if path == "" {
		return ""
	}
	return "at " + path + ": "
}

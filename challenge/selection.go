package challenge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/isdmx/challengebox/errkind"
)

// ParseSelection expands an expression such as "1,3-5" into ascending,
// deduplicated 1-based indices within [1, total]. An empty expression
// selects every index.
func ParseSelection(expr string, total int) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		all := make([]int, total)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errkind.Configf("empty part in case selection %q", expr)
		}

		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > total {
			return nil, errkind.Configf("case selection %q out of range 1-%d", part, total)
		}
		for i := lo; i <= hi; i++ {
			seen[i] = struct{}{}
		}
	}

	indices := make([]int, 0, len(seen))
	for i := range seen {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices, nil
}

func parseRange(part string) (int, int, error) {
	from, to, isRange := strings.Cut(part, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, errkind.Configf("invalid case selection %q", part)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return 0, 0, errkind.Configf("invalid case selection %q", part)
	}
	if hi < lo {
		return 0, 0, errkind.Configf("descending case range %q", part)
	}
	return lo, hi, nil
}

// Select returns the cases chosen by expr in ascending index order.
func Select(cases []TestCase, expr string) ([]TestCase, error) {
	indices, err := ParseSelection(expr, len(cases))
	if err != nil {
		return nil, err
	}
	selected := make([]TestCase, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, cases[i-1])
	}
	return selected, nil
}

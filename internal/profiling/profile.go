package profiling

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/data-augmenter/internal/types"
)

// CategoricalThreshold is the distinct/non-null ratio below which a column is categorical.
const CategoricalThreshold = 0.5

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Profile computes a ColumnProfile for every column of t.
// The result does not depend on row order.
func Profile(t *types.Table) (types.Profiles, error) {
	if err := checkShape(t); err != nil {
		return nil, err
	}
	profiles := make(types.Profiles, t.NumColumns())
	for i := 0; i < t.NumColumns(); i++ {
		col := t.Column(i)
		profiles[col.Name] = ProfileColumn(col)
	}
	return profiles, nil
}

func checkShape(t *types.Table) error {
	if t == nil || t.NumColumns() == 0 {
		return &Error{Message: "table has no columns"}
	}
	if t.NumRows() == 0 {
		return &Error{Message: "table has no rows"}
	}
	return nil
}

// ProfileColumn infers the type of a single column and computes its statistics.
func ProfileColumn(col types.Column) types.ColumnProfile {
	rows := len(col.Values)
	present := make([]types.Value, 0, rows)
	for _, v := range col.Values {
		if !v.IsMissing() {
			present = append(present, v)
		}
	}

	p := types.ColumnProfile{
		Name:         col.Name,
		InferredType: types.ColumnText,
		NullCount:    rows - len(present),
	}
	if rows > 0 {
		p.NullRate = float64(p.NullCount) / float64(rows)
	}

	counts := make(map[string]int, len(present))
	for _, v := range present {
		counts[v.Text()]++
	}
	p.DistinctCount = len(counts)

	if len(present) == 0 {
		return p
	}

	if nums, ok := numericValues(present); ok {
		p.InferredType = types.ColumnNumeric
		p.Numeric = numericStats(nums)
		return p
	}
	if stamps, ok := datetimeValues(present); ok {
		p.InferredType = types.ColumnDatetime
		p.Datetime = &types.DatetimeStats{Earliest: stamps[0], Latest: stamps[len(stamps)-1]}
		return p
	}
	if float64(len(counts))/float64(len(present)) < CategoricalThreshold {
		p.InferredType = types.ColumnCategorical
		p.Frequencies = make(map[string]float64, len(counts))
		for k, n := range counts {
			p.Frequencies[k] = float64(n) / float64(rows)
		}
		return p
	}
	p.Text = textStats(present)
	return p
}

func numericValues(present []types.Value) ([]float64, bool) {
	nums := make([]float64, 0, len(present))
	for _, v := range present {
		f, ok := v.Float()
		if !ok {
			return nil, false
		}
		nums = append(nums, f)
	}
	slices.Sort(nums)
	return nums, true
}

// numericStats expects sorted input so sums are accumulated in a fixed order.
func numericStats(nums []float64) *types.NumericStats {
	n := float64(len(nums))
	var sum float64
	integer := true
	for _, x := range nums {
		sum += x
		if x != math.Trunc(x) {
			integer = false
		}
	}
	mean := sum / n
	var sq float64
	for _, x := range nums {
		d := x - mean
		sq += d * d
	}
	mid := len(nums) / 2
	median := nums[mid]
	if len(nums)%2 == 0 {
		median = (nums[mid-1] + nums[mid]) / 2
	}
	return &types.NumericStats{
		Mean:    mean,
		StdDev:  math.Sqrt(sq / n),
		Min:     nums[0],
		Max:     nums[len(nums)-1],
		Median:  median,
		Integer: integer,
	}
}

func datetimeValues(present []types.Value) ([]time.Time, bool) {
	stamps := make([]time.Time, 0, len(present))
	for _, v := range present {
		if v.Kind() != types.KindString {
			return nil, false
		}
		ts, ok := ParseDatetime(v.Text())
		if !ok {
			return nil, false
		}
		stamps = append(stamps, ts)
	}
	slices.SortFunc(stamps, func(a, b time.Time) int { return a.Compare(b) })
	return stamps, true
}

// ParseDatetime parses ISO-8601-like timestamps and dates.
func ParseDatetime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func textStats(present []types.Value) *types.TextStats {
	st := &types.TextStats{MinLength: math.MaxInt}
	total := 0
	for _, v := range present {
		l := utf8.RuneCountInString(v.Text())
		total += l
		st.MinLength = min(st.MinLength, l)
		st.MaxLength = max(st.MaxLength, l)
	}
	st.AvgLength = float64(total) / float64(len(present))
	return st
}

package profiling

import (
	"github.com/zeebo/xxh3"

	"github.com/jonathan/data-augmenter/internal/types"
)

// Summarize profiles t and reports its overall shape, including the number of
// rows that duplicate an earlier row.
func Summarize(t *types.Table) (*types.TableSummary, error) {
	if err := checkShape(t); err != nil {
		return nil, err
	}
	summary := &types.TableSummary{
		RowCount:    t.NumRows(),
		ColumnCount: t.NumColumns(),
		Columns:     make([]types.ColumnProfile, 0, t.NumColumns()),
	}
	for i := 0; i < t.NumColumns(); i++ {
		summary.Columns = append(summary.Columns, ProfileColumn(t.Column(i)))
	}
	summary.DuplicateRowCount = countDuplicateRows(t)
	return summary, nil
}

func countDuplicateRows(t *types.Table) int {
	seen := make(map[uint64]struct{}, t.NumRows())
	dups := 0
	for r := 0; r < t.NumRows(); r++ {
		fp := RowFingerprint(t, r)
		if _, ok := seen[fp]; ok {
			dups++
			continue
		}
		seen[fp] = struct{}{}
	}
	return dups
}

// RowFingerprint hashes row r of t. Cells of different kinds with the same text
// hash differently.
func RowFingerprint(t *types.Table, r int) uint64 {
	h := xxh3.New()
	buf := make([]byte, 0, 64)
	for c := 0; c < t.NumColumns(); c++ {
		v := t.Cell(r, c)
		buf = append(buf[:0], byte(v.Kind()))
		buf = append(buf, v.Text()...)
		buf = append(buf, 0x1f)
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}

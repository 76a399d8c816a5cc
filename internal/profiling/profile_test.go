package profiling

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-augmenter/internal/types"
)

func mustTable(t *testing.T, names []string, rows [][]types.Value) *types.Table {
	t.Helper()
	tbl, err := types.NewTable(names, rows)
	require.NoError(t, err)
	return tbl
}

func mixedTable(t *testing.T) *types.Table {
	t.Helper()
	cities := []string{"Paris", "Lyon", "Nice"}
	rows := make([][]types.Value, 0, 30)
	for i := 0; i < 30; i++ {
		age := types.Number(float64(20 + i%7))
		if i%10 == 0 {
			age = types.Null()
		}
		rows = append(rows, []types.Value{
			age,
			types.String(cities[i%3]),
			types.String("note number " + string(rune('a'+i%26)) + string(rune('A'+i))),
			types.String("2024-01-" + []string{"01", "02", "03", "04", "05"}[i%5]),
		})
	}
	return mustTable(t, []string{"age", "city", "notes", "joined"}, rows)
}

func TestProfile_InfersTypes(t *testing.T) {
	profiles, err := Profile(mixedTable(t))
	require.NoError(t, err)
	require.Len(t, profiles, 4)

	assert.Equal(t, types.ColumnNumeric, profiles["age"].InferredType)
	assert.Equal(t, types.ColumnCategorical, profiles["city"].InferredType)
	assert.Equal(t, types.ColumnText, profiles["notes"].InferredType)
	assert.Equal(t, types.ColumnDatetime, profiles["joined"].InferredType)
}

func TestProfile_NumericStats(t *testing.T) {
	tbl := mustTable(t, []string{"x"}, [][]types.Value{
		{types.Number(2)}, {types.Number(4)}, {types.Null()}, {types.String("4")}, {types.Number(5)},
		{types.Number(7)}, {types.Number(9)}, {types.String("")}, {types.Number(4)}, {types.Number(5)},
	})
	profiles, err := Profile(tbl)
	require.NoError(t, err)

	p := profiles["x"]
	require.NotNil(t, p.Numeric)
	assert.Equal(t, types.ColumnNumeric, p.InferredType)
	assert.InDelta(t, 0.2, p.NullRate, 1e-12)
	assert.Equal(t, 2, p.NullCount)
	assert.InDelta(t, 5.0, p.Numeric.Mean, 1e-12)
	assert.InDelta(t, 2.0, p.Numeric.StdDev, 1e-12)
	assert.Equal(t, 2.0, p.Numeric.Min)
	assert.Equal(t, 9.0, p.Numeric.Max)
	assert.Equal(t, 4.5, p.Numeric.Median)
	assert.True(t, p.Numeric.Integer)
}

func TestProfile_ConstantColumnHasZeroStdDev(t *testing.T) {
	rows := make([][]types.Value, 10)
	for i := range rows {
		rows[i] = []types.Value{types.Number(5.0)}
	}
	profiles, err := Profile(mustTable(t, []string{"v"}, rows))
	require.NoError(t, err)
	assert.Equal(t, 0.0, profiles["v"].Numeric.StdDev)
	assert.Equal(t, 5.0, profiles["v"].Numeric.Mean)
}

func TestProfile_CategoricalFrequenciesSumToPresentShare(t *testing.T) {
	profiles, err := Profile(mustTable(t, []string{"c"}, [][]types.Value{
		{types.String("a")}, {types.String("b")}, {types.String("a")}, {types.Null()},
		{types.String("a")}, {types.String("b")}, {types.String(" ")}, {types.String("a")},
	}))
	require.NoError(t, err)

	p := profiles["c"]
	require.Equal(t, types.ColumnCategorical, p.InferredType)
	assert.InDelta(t, 0.25, p.NullRate, 1e-12)
	assert.Equal(t, map[string]float64{"a": 0.5, "b": 0.25}, p.Frequencies)

	var sum float64
	for _, f := range p.Frequencies {
		sum += f
	}
	assert.InDelta(t, 1-p.NullRate, sum, 1e-9)
}

func TestProfile_EmptyColumnIsText(t *testing.T) {
	profiles, err := Profile(mustTable(t, []string{"x", "y"}, [][]types.Value{
		{types.Number(1), types.Null()},
		{types.Number(2), types.String("")},
	}))
	require.NoError(t, err)
	assert.Equal(t, types.ColumnText, profiles["y"].InferredType)
	assert.Equal(t, 1.0, profiles["y"].NullRate)
	assert.Nil(t, profiles["y"].Text)
}

func TestProfile_TextStats(t *testing.T) {
	profiles, err := Profile(mustTable(t, []string{"t"}, [][]types.Value{
		{types.String("ab")}, {types.String("héllo")}, {types.String("xyz")},
	}))
	require.NoError(t, err)
	p := profiles["t"]
	require.NotNil(t, p.Text)
	assert.Equal(t, 2, p.Text.MinLength)
	assert.Equal(t, 5, p.Text.MaxLength)
	assert.InDelta(t, 10.0/3.0, p.Text.AvgLength, 1e-12)
}

func TestProfile_Errors(t *testing.T) {
	_, err := Profile(mustTable(t, nil, nil))
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Message, "no columns")

	_, err = Profile(mustTable(t, []string{"a"}, nil))
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Message, "no rows")
}

func TestProfile_Idempotent(t *testing.T) {
	tbl := mixedTable(t)
	first, err := Profile(tbl)
	require.NoError(t, err)
	second, err := Profile(tbl)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProfile_RowOrderIndependent(t *testing.T) {
	tbl := mixedTable(t)
	rows := tbl.Rows()

	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([][]types.Value, len(rows))
		copy(shuffled, rows)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		want, err := Profile(tbl)
		require.NoError(t, err)
		got, err := Profile(mustTable(t, tbl.ColumnNames(), shuffled))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseDatetime(t *testing.T) {
	for _, s := range []string{"2024-03-01", "2024-03-01T10:00:00Z", "2024-03-01 10:00:00", "2024-03-01T10:00"} {
		_, ok := ParseDatetime(s)
		assert.True(t, ok, s)
	}
	for _, s := range []string{"03/01/2024", "yesterday", "2024-13-01"} {
		_, ok := ParseDatetime(s)
		assert.False(t, ok, s)
	}
}

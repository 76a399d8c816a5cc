package types

import "time"

// ColumnType is the inferred semantic type of a column.
type ColumnType string

const (
	ColumnNumeric     ColumnType = "numeric"
	ColumnCategorical ColumnType = "categorical"
	ColumnDatetime    ColumnType = "datetime"
	ColumnText        ColumnType = "text"
)

// NumericStats holds summary statistics for a numeric column. Nulls are ignored.
type NumericStats struct {
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Median  float64 `json:"median"`
	Integer bool    `json:"integer"`
}

// TextStats holds string length statistics for a text column.
type TextStats struct {
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// DatetimeStats holds the observed range of a datetime column.
type DatetimeStats struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// ColumnProfile is the statistical summary of one column.
// For categorical columns the frequencies sum to 1 - NullRate.
type ColumnProfile struct {
	Name          string             `json:"name"`
	InferredType  ColumnType         `json:"inferred_type"`
	NullRate      float64            `json:"null_rate"`
	NullCount     int                `json:"null_count"`
	DistinctCount int                `json:"distinct_count"`
	Numeric       *NumericStats      `json:"numeric,omitempty"`
	Frequencies   map[string]float64 `json:"frequencies,omitempty"`
	Text          *TextStats         `json:"text,omitempty"`
	Datetime      *DatetimeStats     `json:"datetime,omitempty"`
}

// Profiles maps column names to their profiles.
type Profiles map[string]ColumnProfile

// TableSummary describes the overall shape of a table.
type TableSummary struct {
	RowCount          int             `json:"row_count"`
	ColumnCount       int             `json:"column_count"`
	DuplicateRowCount int             `json:"duplicate_row_count"`
	Columns           []ColumnProfile `json:"columns"`
}

// Package observability provides logger construction and formatted output for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/data-augmenter/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// progressBarWidth is the number of cells in a progress bar
	progressBarWidth = 30
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintSummary outputs the table shape and one line per column profile.
func (p *Printer) PrintSummary(summary *types.TableSummary) {
	if summary == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Rows:       %d\n", summary.RowCount))
	sb.WriteString(fmt.Sprintf("Columns:    %d\n", summary.ColumnCount))
	sb.WriteString(fmt.Sprintf("Duplicates: %d\n", summary.DuplicateRowCount))
	if len(summary.Columns) > 0 {
		sb.WriteString("\n")
	}
	for _, col := range summary.Columns {
		sb.WriteString(fmt.Sprintf("%s (%s)\n", col.Name, col.InferredType))
		sb.WriteString(fmt.Sprintf("    nulls %.1f%%, distinct %d\n", col.NullRate*100, col.DistinctCount))
		if detail := columnDetail(col); detail != "" {
			sb.WriteString("    " + detail + "\n")
		}
	}

	p.printBox("TABLE PROFILE", strings.TrimSuffix(sb.String(), "\n"))
}

// columnDetail summarizes the type-specific statistics of a column
func columnDetail(col types.ColumnProfile) string {
	switch {
	case col.Numeric != nil:
		n := col.Numeric
		return fmt.Sprintf("mean %.3g, sd %.3g, range [%.4g, %.4g]", n.Mean, n.StdDev, n.Min, n.Max)
	case len(col.Frequencies) > 0:
		return "top: " + topCategories(col.Frequencies, 3)
	case col.Text != nil:
		return fmt.Sprintf("length %d-%d, avg %.1f", col.Text.MinLength, col.Text.MaxLength, col.Text.AvgLength)
	case col.Datetime != nil:
		return fmt.Sprintf("%s to %s", col.Datetime.Earliest.Format("2006-01-02"), col.Datetime.Latest.Format("2006-01-02"))
	}
	return ""
}

// topCategories lists the n most frequent categories, ties broken by name
func topCategories(freq map[string]float64, n int) string {
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, n)
	for i := 0; i < len(keys) && i < n; i++ {
		parts = append(parts, fmt.Sprintf("%s %.0f%%", keys[i], freq[keys[i]]*100))
	}
	if len(keys) > n {
		parts = append(parts, fmt.Sprintf("+%d more", len(keys)-n))
	}
	return strings.Join(parts, ", ")
}

// PrintProgress writes one progress line with a bar, the step and its message.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(ev types.ProgressEvent) {
	filled := int(ev.Percentage / 100 * progressBarWidth)
	filled = min(max(filled, 0), progressBarWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)

	line := fmt.Sprintf("[%s] %5.1f%%  %-10s", bar, ev.Percentage, ev.Step)
	if ev.Message != "" {
		line += "  " + ev.Message
	}
	if ev.ErrorKind != "" {
		line += fmt.Sprintf(" (%s)", ev.ErrorKind)
	}
	fmt.Fprintln(p.out, line)
}

// PrintPipeline outputs the final state of a pipeline and its stored outputs.
func (p *Printer) PrintPipeline(pl *types.PipelineInstance, result *types.ResultInfo) {
	if pl == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:      %s\n", pl.ID))
	sb.WriteString(fmt.Sprintf("Source:  %s\n", pl.Source))
	sb.WriteString(fmt.Sprintf("Method:  %s\n", pl.Config.Method))
	sb.WriteString(fmt.Sprintf("Stage:   %s\n", pl.Stage))
	if pl.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("Elapsed: %s\n", pl.CompletedAt.Sub(pl.CreatedAt).Round(1e6)))
	}

	if result != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Original rows:  %d\n", result.OriginalRowCount))
		sb.WriteString(fmt.Sprintf("Generated rows: %d\n", result.GeneratedRowCount))
		sb.WriteString(fmt.Sprintf("Total rows:     %d\n", result.TotalRowCount))
	}

	if pl.ErrorMessage != "" {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Error (%s):\n", pl.ErrorKind))
		sb.WriteString("  " + pl.ErrorMessage + "\n")
	}

	if o := pl.Outputs; o != nil {
		sb.WriteString("\nOutputs:\n")
		count := 0
		for _, obj := range []*types.StoredObject{o.Parquet, o.CSV, o.Manifest} {
			if obj == nil || count >= maxItemsToShow {
				continue
			}
			sb.WriteString(fmt.Sprintf("  • %s (%d bytes)\n", obj.Handle, obj.Size))
			count++
		}
	}

	p.printBox("PIPELINE "+string(pl.Stage), strings.TrimSuffix(sb.String(), "\n"))
}

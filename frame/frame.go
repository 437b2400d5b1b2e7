// Copyright 2025 CivicData

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frame assembles dynamically shaped records into a single tabular
// structure with a fixed column set, and renders it as CSV or readable text.
package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/civicdata/inspections/dates"
	"github.com/civicdata/inspections/socrata"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Config for assembling a Frame from raw records.
type Config struct {
	// DateColumn, when non-empty, is normalized in place from the source's raw
	// timestamp strings to "YYYY-MM-DD". A non-empty value that fails to parse
	// aborts the assembly; silently dropping such rows would corrupt the row
	// count.
	DateColumn string
	// Columns, when non-empty, is the preferred column projection in output
	// order; names absent from the data are skipped. When empty, the column
	// set is the union of keys seen across all records, sorted.
	Columns []string
}

// Frame is an ordered row set with a fixed column set. Rows keep their
// arrival order; cells missing from a row are null.
type Frame struct {
	Columns []string
	Rows    []socrata.Record
}

// columnSet folds all records into the set of field names seen.
func columnSet(recs []socrata.Record) map[string]bool {
	return iterator.Reduce[socrata.Record, map[string]bool](
		iterator.FromSlice(recs), map[string]bool{},
		func(r socrata.Record, cols map[string]bool) map[string]bool {
			for k := range r {
				cols[k] = true
			}
			return cols
		})
}

// FromRecords assembles records into a Frame according to the config.
func FromRecords(recs []socrata.Record, c Config) (*Frame, error) {
	seen := columnSet(recs)
	var cols []string
	if len(c.Columns) > 0 {
		for _, col := range c.Columns {
			if seen[col] {
				cols = append(cols, col)
			}
		}
	} else {
		cols = maps.Keys(seen)
		slices.Sort(cols)
	}
	f := &Frame{Columns: cols, Rows: recs}
	if c.DateColumn != "" {
		if err := f.normalizeDates(c.DateColumn); err != nil {
			return nil, errors.Annotate(err, "failed to normalize column '%s'", c.DateColumn)
		}
	}
	return f, nil
}

// normalizeDates rewrites the column's raw timestamp strings as "YYYY-MM-DD".
// Missing and empty values stay null.
func (f *Frame) normalizeDates(column string) error {
	for i, r := range f.Rows {
		v, ok := r[column]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return errors.Reason("row %d: value %v (%T) is not a string", i, v, v)
		}
		if s == "" {
			r[column] = nil
			continue
		}
		d, err := dates.NewDateFromString(s)
		if err != nil {
			return errors.Annotate(err, "row %d", i)
		}
		r[column] = d.String()
	}
	return nil
}

// CellString renders a single cell value. Null cells render as the empty
// string; JSON numbers keep their shortest exact representation.
func CellString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// strings renders a row in column order.
func (f *Frame) strings(r socrata.Record) []string {
	row := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		row[i] = CellString(r[c])
	}
	return row
}

// Params are parameters for pretty-printing or CSV export of Frame data.
type Params struct {
	Rows        int  // max. number of rows to write; 0 = unlimited (default)
	NoHeader    bool // whether to print the header, default - yes
	MaxColWidth int  // for WriteText only; 0 = unlimited, otherwise must be >= 4
}

// WriteCSV writes the frame to w in CSV format.
func (f *Frame) WriteCSV(w io.Writer, p Params) error {
	cw := csv.NewWriter(w)
	if !p.NoHeader && len(f.Columns) > 0 {
		if err := cw.Write(f.Columns); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
	}
	for i, r := range f.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		if err := cw.Write(f.strings(r)); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Annotate(err, "failed to flush written rows")
	}
	return nil
}

// WriteText writes the frame as a text formatted for ease of reading.
func (f *Frame) WriteText(w io.Writer, p Params) error {
	if p.MaxColWidth != 0 && p.MaxColWidth < 4 {
		return errors.Reason("MaxColWidth [%d] must be 0 or >= 4", p.MaxColWidth)
	}
	if len(f.Columns) == 0 {
		return errors.Reason("frame has no columns")
	}
	widths := make([]int, len(f.Columns))
	update := func(row []string) {
		for i := range widths {
			if widths[i] < len(row[i]) {
				widths[i] = len(row[i])
				if p.MaxColWidth > 0 && widths[i] > p.MaxColWidth {
					widths[i] = p.MaxColWidth
				}
			}
		}
	}

	write := func(row []string) error {
		trimmed := make([]string, len(row))
		for i, s := range row {
			trimmed[i] = s
			if len([]rune(s)) > widths[i] {
				r := []rune(s)[:widths[i]-2]
				trimmed[i] = string(r) + ".."
			}
			trimmed[i] = fmt.Sprintf("%[2]*[1]s", trimmed[i], widths[i])
		}
		_, err := fmt.Fprintf(w, "%s\n", strings.Join(trimmed, " | "))
		return err
	}

	dashedRow := func() []string {
		row := make([]string, len(widths))
		for i, n := range widths {
			row[i] = strings.Repeat("-", n)
		}
		return row
	}

	if !p.NoHeader {
		update(f.Columns)
	}
	for i, r := range f.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		update(f.strings(r))
	}

	if !p.NoHeader {
		if err := write(f.Columns); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
		if err := write(dashedRow()); err != nil {
			return errors.Annotate(err, "failed to write header separator")
		}
	}
	for i, r := range f.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		if err := write(f.strings(r)); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	return nil
}

// Summary holds basic statistics of a numeric column.
type Summary struct {
	Column string
	Count  int // cells that parsed as numbers
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// String representation of the summary, for logging.
func (s Summary) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no numeric values", s.Column)
	}
	return fmt.Sprintf("%s: count=%d mean=%.2f stddev=%.2f min=%.2f max=%.2f",
		s.Column, s.Count, s.Mean, s.StdDev, s.Min, s.Max)
}

// NumericSummary computes basic statistics of a column. Cells that are
// missing, null or do not parse as numbers are skipped.
func (f *Frame) NumericSummary(column string) Summary {
	var xs []float64
	for _, r := range f.Rows {
		switch v := r[column].(type) {
		case float64:
			xs = append(xs, v)
		case string:
			if x, err := strconv.ParseFloat(v, 64); err == nil {
				xs = append(xs, x)
			}
		}
	}
	s := Summary{Column: column, Count: len(xs)}
	if len(xs) == 0 {
		return s
	}
	s.Mean = stat.Mean(xs, nil)
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)
	return s
}

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

// Package inspections binds the generic Socrata row API to the DOHMH New York
// City Restaurant Inspection Results dataset and runs the complete pull:
// window -> query -> paginated fetch -> frame -> CSV and Parquet export.
package inspections

import (
	"context"
	"strings"

	"github.com/civicdata/inspections/dates"
	"github.com/civicdata/inspections/export"
	"github.com/civicdata/inspections/frame"
	"github.com/civicdata/inspections/socrata"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

const (
	// Dataset is the id of DOHMH New York City Restaurant Inspection Results.
	Dataset    = "43nn-pn8j"
	DateColumn = "inspection_date"
	// DefaultOrder pages newest inspections first, tie-broken by the unique
	// restaurant id so that offset paging sees a total order.
	DefaultOrder = "inspection_date DESC, camis"
	ScoreColumn  = "score"

	previewRows = 5
)

// DefaultColumns is the projection retained in the exported table, in output
// order.
var DefaultColumns = []string{
	"camis", "dba", "boro", "building", "street", "zipcode", "phone",
	"cuisine_description", "inspection_date", "action", "violation_code",
	"violation_description", "critical_flag", "score", "grade",
	"grade_date", "record_date", "inspection_type",
}

// Config selects the dataset and shapes the query and the exported table.
type Config struct {
	Dataset    string
	DateColumn string
	Order      string
	PageSize   int
	Columns    []string // empty = union of keys seen in the data
	FilePrefix string   // output files: <FilePrefix>_<window>.{csv,parquet}
}

// DefaultConfig returns the config matching the public NYC dataset.
func DefaultConfig() Config {
	return Config{
		Dataset:    Dataset,
		DateColumn: DateColumn,
		Order:      DefaultOrder,
		PageSize:   socrata.DefaultPageSize,
		Columns:    DefaultColumns,
		FilePrefix: "nyc_restaurant_inspections",
	}
}

// Validate checks the config invariants before any request is made.
func (c Config) Validate() error {
	if c.Dataset == "" {
		return errors.Reason("dataset id is required")
	}
	if c.DateColumn == "" {
		return errors.Reason("date column is required")
	}
	if c.PageSize < 1 {
		return errors.Reason("page size [%d] must be positive", c.PageSize)
	}
	return nil
}

// Query builds the row query for the window.
func (c Config) Query(w dates.Window) *socrata.RowQuery {
	return socrata.NewRowQuery(c.Dataset).
		Between(c.DateColumn, w.Start, w.End).
		Order(c.Order).
		Limit(c.PageSize)
}

// Fetch retrieves the complete set of inspection rows in the window,
// transparently paging. A failure on any page returns an error and no rows.
func Fetch(ctx context.Context, c Config, w dates.Window) ([]socrata.Record, error) {
	logging.Infof(ctx, "fetching %s inspections for %s...", c.Dataset, w)
	rows, err := c.Query(w).ReadAll(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch inspections for %s", w)
	}
	logging.Infof(ctx, "downloaded %d inspections", len(rows))
	return rows, nil
}

// Assemble builds the export frame from raw rows, normalizing the date
// column.
func Assemble(recs []socrata.Record, c Config) (*frame.Frame, error) {
	f, err := frame.FromRecords(recs, frame.Config{
		DateColumn: c.DateColumn,
		Columns:    c.Columns,
	})
	if err != nil {
		return nil, errors.Annotate(err, "failed to assemble inspections frame")
	}
	return f, nil
}

// Pull runs the complete pull for the window and writes both export files
// into dir. A window with no matching rows is a success and writes nothing.
func Pull(ctx context.Context, c Config, w dates.Window, dir string) error {
	if err := c.Validate(); err != nil {
		return errors.Annotate(err, "invalid config")
	}
	if !w.Valid() {
		return errors.Reason("invalid window %s: start is after end", w)
	}
	recs, err := Fetch(ctx, c, w)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		logging.Infof(ctx, "no inspections in %s, nothing to export", w)
		return nil
	}
	f, err := Assemble(recs, c)
	if err != nil {
		return err
	}
	logging.Infof(ctx, "assembled %d rows x %d columns", len(f.Rows), len(f.Columns))

	var preview strings.Builder
	if err := f.WriteText(&preview, frame.Params{Rows: previewRows, MaxColWidth: 20}); err != nil {
		logging.Warningf(ctx, "failed to render preview: %s", err.Error())
	} else {
		logging.Infof(ctx, "first rows:\n%s", preview.String())
	}
	logging.Infof(ctx, "%s", f.NumericSummary(ScoreColumn))

	csvPath, parquetPath, err := export.WriteAll(f, dir, c.FilePrefix+"_"+w.FileTag())
	if err != nil {
		return errors.Annotate(err, "failed to export inspections")
	}
	logging.Infof(ctx, "wrote %s", csvPath)
	logging.Infof(ctx, "wrote %s", parquetPath)
	return nil
}

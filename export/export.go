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

// Package export persists an assembled frame as a row-oriented CSV file and a
// columnar Parquet file holding the same logical rows and columns. The
// matching readers recover the row count and column set, which is what
// round-trip verification needs.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/civicdata/inspections/frame"
	"github.com/parquet-go/parquet-go"
	"github.com/stockparfait/errors"
)

func create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open file for writing: '%s'", path)
	}
	return f, nil
}

// WriteCSV writes the frame to path in CSV format.
func WriteCSV(f *frame.Frame, path string) error {
	out, err := create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := f.WriteCSV(out, frame.Params{}); err != nil {
		return errors.Annotate(err, "failed to write CSV to '%s'", path)
	}
	return nil
}

// ReadCSV reads back a CSV file written by WriteCSV and returns its column
// set and data row count.
func ReadCSV(path string) ([]string, int, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Annotate(err, "failed to open file for reading: '%s'", path)
	}
	defer in.Close()
	rows, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return nil, 0, errors.Annotate(err, "failed to read CSV from '%s'", path)
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}
	return rows[0], len(rows) - 1, nil
}

// parquetSchema builds the file schema from the frame's column set. Every
// column is an optional string: the source values are untyped, and null must
// stay distinguishable from the empty string.
func parquetSchema(columns []string) *parquet.Schema {
	group := parquet.Group{}
	for _, c := range columns {
		group[c] = parquet.Optional(parquet.String())
	}
	return parquet.NewSchema("frame", group)
}

// WriteParquet writes the frame to path in Parquet format.
func WriteParquet(f *frame.Frame, path string) error {
	out, err := create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	w := parquet.NewGenericWriter[map[string]any](out, parquetSchema(f.Columns))
	rows := make([]map[string]any, len(f.Rows))
	for i, r := range f.Rows {
		row := make(map[string]any, len(f.Columns))
		for _, c := range f.Columns {
			if v, ok := r[c]; ok && v != nil {
				row[c] = frame.CellString(v)
			}
		}
		rows[i] = row
	}
	if _, err := w.Write(rows); err != nil {
		return errors.Annotate(err, "failed to write rows to '%s'", path)
	}
	if err := w.Close(); err != nil {
		return errors.Annotate(err, "failed to finalize '%s'", path)
	}
	return nil
}

// ReadParquet reads back the column set and row count of a Parquet file
// written by WriteParquet.
func ReadParquet(path string) ([]string, int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Annotate(err, "failed to open file for reading: '%s'", path)
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return nil, 0, errors.Annotate(err, "failed to stat '%s'", path)
	}
	pf, err := parquet.OpenFile(in, st.Size())
	if err != nil {
		return nil, 0, errors.Annotate(err, "failed to read Parquet file '%s'", path)
	}
	var columns []string
	for _, fld := range pf.Schema().Fields() {
		columns = append(columns, fld.Name())
	}
	return columns, pf.NumRows(), nil
}

// WriteAll writes both export formats of the frame into dir as "<base>.csv"
// and "<base>.parquet". The formats are independent failure domains: both
// writes are always attempted, and the returned paths name the files that
// were written successfully.
func WriteAll(f *frame.Frame, dir, base string) (csvPath, parquetPath string, err error) {
	csvPath = filepath.Join(dir, base+".csv")
	parquetPath = filepath.Join(dir, base+".parquet")
	csvErr := WriteCSV(f, csvPath)
	parquetErr := WriteParquet(f, parquetPath)
	switch {
	case csvErr != nil && parquetErr != nil:
		return "", "", errors.Reason("both exports failed: %s; %s",
			csvErr.Error(), parquetErr.Error())
	case csvErr != nil:
		return "", parquetPath, errors.Annotate(csvErr, "CSV export failed")
	case parquetErr != nil:
		return csvPath, "", errors.Annotate(parquetErr, "Parquet export failed")
	}
	return csvPath, parquetPath, nil
}

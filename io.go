/*
Copyright © 2025 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package tradepm

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom/encoding/shp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// s2f parses a table value. Values that are empty after trimming
// NUL bytes, asterisks and spaces are nulls, which are read as zero.
func s2f(s string) (float64, error) {
	s = strings.Trim(s, "\x00* ")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadCells reads grid cells from a CSV table with columns TotalPM25,
// TotalPop, and area_fraction. Other columns are ignored. Cells whose area
// fraction cannot be parsed are given an empty area fraction and their
// row indices are returned in malformed. If log is nil,
// logrus.StandardLogger() is used.
func ReadCells(r io.Reader, log logrus.FieldLogger) (cells []*Cell, malformed []int, err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("tradepm: reading grid cell header: %v", err)
	}
	col := make(map[string]int)
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	var idx [3]int
	for i, name := range []string{"TotalPM25", "TotalPop", "area_fraction"} {
		c, ok := col[name]
		if !ok {
			return nil, nil, fmt.Errorf("tradepm: grid cell table is missing column %s", name)
		}
		idx[i] = c
	}
	cr.FieldsPerRecord = len(header)
	cr.ReuseRecord = true
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("tradepm: reading grid cell %d: %v", row, err)
		}
		c := new(Cell)
		if c.TotalPM25, err = s2f(rec[idx[0]]); err != nil {
			return nil, nil, fmt.Errorf("tradepm: grid cell %d TotalPM25: %v", row, err)
		}
		if c.TotalPop, err = s2f(rec[idx[1]]); err != nil {
			return nil, nil, fmt.Errorf("tradepm: grid cell %d TotalPop: %v", row, err)
		}
		if math.IsNaN(c.TotalPM25) || math.IsNaN(c.TotalPop) {
			return nil, nil, fmt.Errorf("tradepm: grid cell %d has a NaN concentration or population", row)
		}
		if c.AreaFraction, err = ParseAreaFraction(rec[idx[2]]); err != nil {
			log.WithError(err).WithField("cell", row).Warn("using empty area fraction")
			malformed = append(malformed, row)
		}
		cells = append(cells, c)
	}
	return cells, malformed, nil
}

// ReadCountryTable reads a JSON object mapping country names to numbers,
// such as total baseline deaths or population. Numbers may be quoted.
func ReadCountryTable(r io.Reader) (map[string]float64, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("tradepm: reading country table: %v", err)
	}
	out := make(map[string]float64, len(raw))
	for c, v := range raw {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("tradepm: country table value for %s: %v", c, err)
		}
		out[c] = f
	}
	return out, nil
}

// ReadMatrixCSV reads a numeric table. The first row holds the column
// labels. If the first column label is empty, the first column holds row
// labels, which are returned in rows.
func ReadMatrixCSV(r io.Reader) (rows, cols []string, m *mat.Dense, err error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tradepm: reading table header: %v", err)
	}
	hasRowLabels := strings.TrimSpace(header[0]) == ""
	start := 0
	if hasRowLabels {
		start = 1
	}
	for _, h := range header[start:] {
		cols = append(cols, strings.TrimSpace(h))
	}
	if len(cols) == 0 {
		return nil, nil, nil, fmt.Errorf("tradepm: table has no data columns")
	}
	cr.FieldsPerRecord = len(header)
	cr.ReuseRecord = true
	var data []float64
	for i := 0; ; i++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("tradepm: reading table row %d: %v", i, err)
		}
		if hasRowLabels {
			rows = append(rows, strings.TrimSpace(rec[0]))
		}
		for j, s := range rec[start:] {
			v, err := s2f(s)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("tradepm: table row %d column %s: %v", i, cols[j], err)
			}
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return nil, nil, nil, fmt.Errorf("tradepm: table has no data rows")
	}
	return rows, cols, mat.NewDense(len(data)/len(cols), len(cols), data), nil
}

// ReadConsumerMatrix reads a consumer concentration matrix, where rows are
// grid cells and columns are consumer countries.
func ReadConsumerMatrix(r io.Reader) (consumers []string, m *mat.Dense, err error) {
	_, consumers, m, err = ReadMatrixCSV(r)
	return consumers, m, err
}

// ReadProductionConcentration reads a table of the concentrations in each
// grid cell caused by production in one country and returns the sum of
// the given sector columns for each cell.
func ReadProductionConcentration(r io.Reader, sectors []string) ([]float64, error) {
	_, cols, m, err := ReadMatrixCSV(r)
	if err != nil {
		return nil, err
	}
	var use []int
	for _, s := range sectors {
		j := indexOf(cols, s)
		if j < 0 {
			return nil, fmt.Errorf("tradepm: production concentration table is missing sector %s", s)
		}
		use = append(use, j)
	}
	n, _ := m.Dims()
	out := make([]float64, n)
	for i := range out {
		for _, j := range use {
			out[i] += m.At(i, j)
		}
	}
	return out, nil
}

// ReadProductionConcentrations reads the production concentration table
// <dir>/<country>.csv for each country and returns the sum of the given
// sectors over all countries for each grid cell. Files are read
// concurrently.
func ReadProductionConcentrations(ctx context.Context, dir string, countries, sectors []string) ([]float64, error) {
	tables := make([][]float64, len(countries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range countries {
		i, c := i, c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(filepath.Join(dir, c+".csv"))
			if err != nil {
				return fmt.Errorf("tradepm: opening production concentrations: %v", err)
			}
			defer f.Close()
			tables[i], err = ReadProductionConcentration(f, sectors)
			if err != nil {
				return fmt.Errorf("tradepm: production concentrations for %s: %w", c, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, nil
	}
	out := make([]float64, len(tables[0]))
	for i, t := range tables {
		if len(t) != len(out) {
			return nil, fmt.Errorf("tradepm: production concentrations for %s have %d cells but %s has %d: %w",
				countries[i], len(t), countries[0], len(out), ErrDataShapeMismatch)
		}
		for j, v := range t {
			out[j] += v
		}
	}
	return out, nil
}

// ReadShapefileColumn reads the numeric attribute column from every
// record of a shapefile, such as the TotalPM25 column of a biogenic
// concentration layer.
func ReadShapefileColumn(filename, column string) ([]float64, error) {
	d, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("tradepm: opening shapefile: %v", err)
	}
	defer d.Close()
	var out []float64
	for {
		_, fields, more := d.DecodeRowFields(column)
		if !more {
			break
		}
		s, ok := fields[column]
		if !ok {
			if err := d.Error(); err != nil {
				return nil, fmt.Errorf("tradepm: reading shapefile %s: %v", filename, err)
			}
			return nil, fmt.Errorf("tradepm: shapefile %s is missing attribute column %s", filename, column)
		}
		v, err := s2f(s)
		if err != nil {
			return nil, fmt.Errorf("tradepm: shapefile %s record %d: %v", filename, len(out), err)
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("tradepm: shapefile %s record %d: NaN %s value", filename, len(out), column)
		}
		out = append(out, v)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("tradepm: reading shapefile %s: %v", filename, err)
	}
	return out, nil
}

// MergeConcentrations sets the total concentration of each cell to the sum
// of its production and biogenic concentrations. Either may be nil, and if
// both are nil the cells are not changed.
func MergeConcentrations(cells []*Cell, production, biogenic []float64) error {
	if production == nil && biogenic == nil {
		return nil
	}
	for _, c := range []struct {
		name string
		v    []float64
	}{{"production", production}, {"biogenic", biogenic}} {
		if c.v != nil && len(c.v) != len(cells) {
			return fmt.Errorf("tradepm: there are %d %s concentrations but %d grid cells: %w",
				len(c.v), c.name, len(cells), ErrDataShapeMismatch)
		}
	}
	for i, c := range cells {
		c.TotalPM25 = 0
		if production != nil {
			c.TotalPM25 += production[i]
		}
		if biogenic != nil {
			c.TotalPM25 += biogenic[i]
		}
	}
	return nil
}

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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/tealeg/xlsx"
	"gonum.org/v1/gonum/mat"
)

var (
	pairsHeader  = []string{"Consumer", "Producer", "Deaths_median", "Deaths_low95", "Deaths_high95"}
	globalHeader = []string{"median", "low95", "high95", "draws_used"}
)

func f2s(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WritePairsCSV writes the pair summaries to w as a CSV table.
func WritePairsCSV(w io.Writer, pairs []PairSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(pairsHeader); err != nil {
		return fmt.Errorf("tradepm: writing pair summaries: %v", err)
	}
	for _, p := range pairs {
		rec := []string{p.Consumer, p.Producer, f2s(p.Median), f2s(p.Low95), f2s(p.High95)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("tradepm: writing pair summaries: %v", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGlobalCSV writes the global summary to w as a single-row CSV table.
func WriteGlobalCSV(w io.Writer, g GlobalSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(globalHeader); err != nil {
		return fmt.Errorf("tradepm: writing global summary: %v", err)
	}
	if err := cw.Write([]string{f2s(g.Median), f2s(g.Low95), f2s(g.High95), strconv.Itoa(g.DrawsUsed)}); err != nil {
		return fmt.Errorf("tradepm: writing global summary: %v", err)
	}
	cw.Flush()
	return cw.Error()
}

// WritePairsXLSX writes the pair summaries and the global summary to an
// Excel workbook with sheets "pairs" and "global".
func WritePairsXLSX(filename string, pairs []PairSummary, g GlobalSummary) error {
	f := xlsx.NewFile()
	ps, err := f.AddSheet("pairs")
	if err != nil {
		return fmt.Errorf("tradepm: creating pairs sheet: %v", err)
	}
	addStringRow(ps, pairsHeader)
	for _, p := range pairs {
		r := ps.AddRow()
		r.AddCell().SetString(p.Consumer)
		r.AddCell().SetString(p.Producer)
		r.AddCell().SetFloat(p.Median)
		r.AddCell().SetFloat(p.Low95)
		r.AddCell().SetFloat(p.High95)
	}

	gs, err := f.AddSheet("global")
	if err != nil {
		return fmt.Errorf("tradepm: creating global sheet: %v", err)
	}
	addStringRow(gs, globalHeader)
	r := gs.AddRow()
	r.AddCell().SetFloat(g.Median)
	r.AddCell().SetFloat(g.Low95)
	r.AddCell().SetFloat(g.High95)
	r.AddCell().SetInt(g.DrawsUsed)

	if err := f.Save(filename); err != nil {
		return fmt.Errorf("tradepm: saving %s: %v", filename, err)
	}
	return nil
}

func addStringRow(s *xlsx.Sheet, values []string) {
	r := s.AddRow()
	for _, v := range values {
		r.AddCell().SetString(v)
	}
}

// WriteMatrixCSV writes m to w as a table that can be read by ReadMatrixCSV.
// If rows is empty, the table has no row label column.
func WriteMatrixCSV(w io.Writer, rows, cols []string, m mat.Matrix) error {
	r, c := m.Dims()
	if len(cols) != c || (len(rows) != 0 && len(rows) != r) {
		return fmt.Errorf("tradepm: writing %d×%d matrix with %d row and %d column labels: %w",
			r, c, len(rows), len(cols), ErrDataShapeMismatch)
	}
	cw := csv.NewWriter(w)
	rec := make([]string, 0, c+1)
	if len(rows) != 0 {
		rec = append(rec, "")
	}
	if err := cw.Write(append(rec, cols...)); err != nil {
		return fmt.Errorf("tradepm: writing matrix: %v", err)
	}
	for i := 0; i < r; i++ {
		rec = rec[:0]
		if len(rows) != 0 {
			rec = append(rec, rows[i])
		}
		for j := 0; j < c; j++ {
			rec = append(rec, f2s(m.At(i, j)))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("tradepm: writing matrix: %v", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

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

package tradepmutil

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/tradepm"
	"github.com/tealeg/xlsx"
)

// writeInputs writes a grid of two cells, each belonging entirely to a
// different country, and returns their locations.
func writeInputs(t *testing.T, dir string) InputFiles {
	t.Helper()
	files := map[string]string{
		"cells.csv": `,TotalPM25,TotalPop,area_fraction
0,5,1000,"{'A': np.float64(1.0)}"
1,0,500,"{'B': 1}"
`,
		"deaths.json":     `{"A": 10, "B": 5}`,
		"population.json": `{"A": 1000, "B": "500"}`,
		"consumers.csv": `,A,B
0,1,0
1,0,1
`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return InputFiles{
		Cells:          filepath.Join(dir, "cells.csv"),
		BaselineDeaths: filepath.Join(dir, "deaths.json"),
		Population:     filepath.Join(dir, "population.json"),
		ConsumerMatrix: filepath.Join(dir, "consumers.csv"),
		Sectors:        []string{"Total"},
	}
}

func readCSV(t *testing.T, filename string) [][]string {
	t.Helper()
	f, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func different(a, b, tolerance float64) bool {
	return math.Abs(a-b) > tolerance*math.Max(1, math.Abs(b))
}

// aaDeaths is the deaths for consumer A and producer A at the mean GEMM
// coefficient with a population unit of 1.
const aaDeaths = 104.72480677482159

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeInputs(t, dir)
	out := OutputFiles{
		Pairs:  filepath.Join(dir, "pairs.csv"),
		Global: filepath.Join(dir, "global.csv"),
		Tensor: filepath.Join(dir, "deaths.ncf"),
	}
	for k, v := range map[string]interface{}{
		"cells":           in.Cells,
		"baseline_deaths": in.BaselineDeaths,
		"population":      in.Population,
		"consumer_matrix": in.ConsumerMatrix,
		"output_pairs":    out.Pairs,
		"output_global":   out.Global,
		"output_tensor":   out.Tensor,
		"theta_se":        0.0,
		"draws":           5,
		"population_unit": 1.0,
		"workers":         2,
		"logfile":         filepath.Join(dir, "run.log"),
	} {
		Cfg.Set(k, v)
	}
	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	pairs := readCSV(t, out.Pairs)
	if len(pairs) != 3 {
		t.Fatalf("have %d pair rows, want 3: %v", len(pairs), pairs)
	}
	if pairs[1][0] != "A" || pairs[1][1] != "A" || pairs[2][0] != "B" || pairs[2][1] != "A" {
		t.Errorf("pair order: %v", pairs)
	}
	for j := 2; j < 5; j++ {
		v, err := strconv.ParseFloat(pairs[1][j], 64)
		if err != nil {
			t.Fatal(err)
		}
		if different(v, aaDeaths, 1e-9) {
			t.Errorf("%s = %g, want %g", pairs[0][j], v, aaDeaths)
		}
		if pairs[2][j] != "0" {
			t.Errorf("(B, A) %s = %s, want 0", pairs[0][j], pairs[2][j])
		}
	}
	global := readCSV(t, out.Global)
	if len(global) != 2 || global[1][3] != "5" {
		t.Errorf("global summary = %v, want 5 draws used", global)
	}
	if _, err := os.Stat(filepath.Join(dir, "run.log")); err != nil {
		t.Errorf("log file: %v", err)
	}

	t.Run("summarize", func(t *testing.T) {
		xlsxFile := filepath.Join(dir, "pairs.xlsx")
		Cfg.Set("output_pairs", xlsxFile)
		Cfg.Set("output_global", filepath.Join(dir, "global2.csv"))
		Root.SetArgs([]string{"summarize"})
		if err := Root.Execute(); err != nil {
			t.Fatal(err)
		}
		f, err := xlsx.OpenFile(xlsxFile)
		if err != nil {
			t.Fatal(err)
		}
		sheet, ok := f.Sheet["pairs"]
		if !ok {
			t.Fatal("missing pairs sheet")
		}
		for i, row := range pairs {
			for j, want := range row {
				if have := sheet.Cell(i, j).Value; j < 2 || i == 0 {
					if have != want {
						t.Errorf("cell (%d, %d) = %s, want %s", i, j, have, want)
					}
				}
			}
		}
		v, err := sheet.Cell(1, 2).Float()
		if err != nil {
			t.Fatal(err)
		}
		if different(v, aaDeaths, 1e-9) {
			t.Errorf("median = %g, want %g", v, aaDeaths)
		}
		global2 := readCSV(t, filepath.Join(dir, "global2.csv"))
		if len(global2) != 2 || global2[1][3] != global[1][3] || global2[1][0] != global[1][0] {
			t.Errorf("summarized global = %v, want %v", global2, global)
		}
	})
}

func TestLoadInputsMerge(t *testing.T) {
	dir := t.TempDir()
	in := writeInputs(t, dir)
	prodDir := filepath.Join(dir, "production")
	if err := os.Mkdir(prodDir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"A.csv": "Total,Other\n2,100\n1,100\n",
		"B.csv": "Total,Other\n0.5,100\n*,100\n",
	} {
		if err := os.WriteFile(filepath.Join(prodDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	in.ProductionConcentrations = prodDir
	inputs, err := LoadInputs(context.Background(), quietLog(), in)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{2.5, 1} {
		if have := inputs.Cells[i].TotalPM25; have != want {
			t.Errorf("cell %d concentration = %g, want %g", i, have, want)
		}
	}
	if inputs.Population["B"] != 500 {
		t.Errorf("population of B = %g, want 500", inputs.Population["B"])
	}

	in.Sectors = []string{"Missing"}
	if _, err := LoadInputs(context.Background(), quietLog(), in); err == nil {
		t.Error("missing sector should cause an error")
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	in := writeInputs(t, dir)
	out := OutputFiles{
		Pairs:  filepath.Join(dir, "pairs.csv"),
		Global: filepath.Join(dir, "global.csv"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := tradepm.DefaultConfig()
	cfg.NumDraws = 10
	if err := Run(ctx, quietLog(), cfg, in, out); err == nil {
		t.Fatal("cancelled run should return an error")
	}
	if _, err := os.Stat(out.Pairs); !os.IsNotExist(err) {
		t.Errorf("cancelled run wrote %s", out.Pairs)
	}
}

// All cells at or below the GEMM threshold attribute no deaths to any
// producer. The summaries are still written but the tensor is not.
func TestRunBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	in := writeInputs(t, dir)
	cells := `,TotalPM25,TotalPop,area_fraction
0,2.0,1000,"{'A': 1}"
1,2.4,500,"{'B': 1}"
`
	if err := os.WriteFile(in.Cells, []byte(cells), 0644); err != nil {
		t.Fatal(err)
	}
	out := OutputFiles{
		Pairs:  filepath.Join(dir, "pairs.csv"),
		Global: filepath.Join(dir, "global.csv"),
		Tensor: filepath.Join(dir, "deaths.ncf"),
	}
	cfg := tradepm.DefaultConfig()
	cfg.NumDraws = 2
	if err := Run(context.Background(), quietLog(), cfg, in, out); err != nil {
		t.Fatal(err)
	}
	if pairs := readCSV(t, out.Pairs); len(pairs) != 1 {
		t.Errorf("have %d pair rows, want only the header: %v", len(pairs), pairs)
	}
	global := readCSV(t, out.Global)
	want := []string{"0", "0", "0", "2"}
	if len(global) != 2 || !reflect.DeepEqual(global[1], want) {
		t.Errorf("global summary = %v, want %v", global, want)
	}
	if _, err := os.Stat(out.Tensor); !os.IsNotExist(err) {
		t.Errorf("tensor with no producers was saved: %v", err)
	}
}

func TestConsumerMatrixCommand(t *testing.T) {
	dir := t.TempDir()
	factors := filepath.Join(dir, "factors.csv")
	output := filepath.Join(dir, "output.csv")
	if err := os.WriteFile(factors, []byte(",s1,s2\nc0,1,2\nc1,3,0.5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(output, []byte(",USA,CHN\ns1,2,0\ns2,5,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "consumers.csv")
	f := ConsumerMatrixInputs{
		Factors:        factors,
		SectorOutput:   output,
		ConsumerMatrix: dest,
		CacheDir:       filepath.Join(dir, "cache"),
	}
	if err := os.Mkdir(f.CacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := ConsumerMatrix(context.Background(), quietLog(), f); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	const want = ",USA,CHN\nc0,12,4\nc1,8.5,1\n"
	if string(b) != want {
		t.Errorf("have %q, want %q", b, want)
	}

	t.Run("sector mismatch", func(t *testing.T) {
		if err := os.WriteFile(output, []byte(",USA,CHN\ns2,2,0\ns1,5,2\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := ConsumerMatrix(context.Background(), quietLog(), f); err == nil {
			t.Error("mismatched sectors should cause an error")
		}
	})
}

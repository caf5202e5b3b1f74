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
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/tradepm/epi"
)

// twoCountryInputs returns a grid of two cells, each belonging entirely to
// a different country, with an identity consumer matrix.
func twoCountryInputs() *Inputs {
	return &Inputs{
		Cells: []*Cell{
			{TotalPM25: 5, TotalPop: 1000, AreaFraction: map[string]float64{"A": 1}},
			{TotalPM25: 0, TotalPop: 500, AreaFraction: map[string]float64{"B": 1}},
		},
		BaselineDeaths:         map[string]float64{"A": 10, "B": 5},
		Population:             map[string]float64{"A": 1000, "B": 500},
		Consumers:              []string{"A", "B"},
		ConsumerConcentrations: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationUnit = 1
	cfg.NumDraws = 20
	return cfg
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func similar(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

func TestEndToEnd(t *testing.T) {
	e, err := NewEngine(testConfig(), twoCountryInputs(), quietLog())
	if err != nil {
		t.Fatal(err)
	}
	tensor, err := e.Tensor(context.Background(), []float64{0.1430})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tensor.Producers, []string{"A"}) {
		t.Errorf("producers = %v, want [A]", tensor.Producers)
	}
	aa, ok := tensor.Deaths(0, "A", "A")
	if !ok {
		t.Fatal("missing (A, A)")
	}
	const want = 104.72480677482159
	if !similar(aa, want, 1e-9) || math.IsInf(aa, 0) {
		t.Errorf("(A, A) deaths = %g, want %g", aa, want)
	}
	for _, pair := range [][2]string{{"A", "B"}, {"B", "A"}, {"B", "B"}} {
		if v, _ := tensor.Deaths(0, pair[0], pair[1]); v != 0 {
			t.Errorf("(%s, %s) deaths = %g, want 0", pair[0], pair[1], v)
		}
	}
}

func TestZeroWeightCountry(t *testing.T) {
	in := twoCountryInputs()
	in.BaselineDeaths["Z"] = 7
	in.Population["Z"] = 100
	in.Consumers = append(in.Consumers, "Z")
	in.ConsumerConcentrations = mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0})
	e, err := NewEngine(testConfig(), in, quietLog())
	if err != nil {
		t.Fatal(err)
	}
	k, ok := e.Index.Index("Z")
	if !ok {
		t.Fatal("Z is not in the index")
	}
	if e.Index.WeightSum[k] != 1 {
		t.Errorf("Z weight sum = %g, want 1", e.Index.WeightSum[k])
	}
	baseline, _ := e.Contributions(0.15)
	if baseline[k] != 0 {
		t.Errorf("Z baseline = %g, want 0", baseline[k])
	}
	tensor, err := e.Tensor(context.Background(), []float64{0.15, 0.13})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range tensor.Producers {
		if p == "Z" {
			t.Error("Z should not be a producer")
		}
	}
	for d := range tensor.Theta {
		for _, p := range tensor.Producers {
			if v, _ := tensor.Deaths(d, "Z", p); v != 0 {
				t.Errorf("draw %d: (Z, %s) deaths = %g, want 0", d, p, v)
			}
		}
	}
}

func TestMissingReferenceData(t *testing.T) {
	in := twoCountryInputs()
	delete(in.Population, "A")
	in.Cells[0].AreaFraction["X"] = 0.5
	e, err := NewEngine(testConfig(), in, quietLog())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(e.MissingBaseline, []string{"X"}) {
		t.Errorf("missing baseline = %v, want [X]", e.MissingBaseline)
	}
	tensor, err := e.Tensor(context.Background(), []float64{0.1430})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tensor.MissingPopulation, []string{"A"}) {
		t.Errorf("missing population = %v, want [A]", tensor.MissingPopulation)
	}
	if v, _ := tensor.Deaths(0, "A", "A"); v != 0 {
		t.Errorf("deaths for producer without population = %g, want 0", v)
	}
}

func TestNewEngineErrors(t *testing.T) {
	var tests = []struct {
		name string
		mod  func(cfg *Config, in *Inputs)
		want error
	}{
		{
			name: "zero draws",
			mod:  func(cfg *Config, in *Inputs) { cfg.NumDraws = 0 },
			want: ErrConfiguration,
		},
		{
			name: "negative SE",
			mod:  func(cfg *Config, in *Inputs) { cfg.GEMM.SE = -1 },
			want: ErrConfiguration,
		},
		{
			name: "zero alpha",
			mod:  func(cfg *Config, in *Inputs) { cfg.GEMM.Alpha = 0 },
			want: ErrConfiguration,
		},
		{
			name: "zero population unit",
			mod:  func(cfg *Config, in *Inputs) { cfg.PopulationUnit = 0 },
			want: ErrConfiguration,
		},
		{
			name: "row mismatch",
			mod: func(cfg *Config, in *Inputs) {
				in.ConsumerConcentrations = mat.NewDense(3, 2, nil)
			},
			want: ErrDataShapeMismatch,
		},
		{
			name: "column mismatch",
			mod: func(cfg *Config, in *Inputs) {
				in.Consumers = []string{"A"}
			},
			want: ErrDataShapeMismatch,
		},
		{
			name: "missing matrix",
			mod: func(cfg *Config, in *Inputs) {
				in.ConsumerConcentrations = nil
			},
			want: ErrDataShapeMismatch,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, in := testConfig(), twoCountryInputs()
			test.mod(&cfg, in)
			_, err := NewEngine(cfg, in, quietLog())
			if !errors.Is(err, test.want) {
				t.Errorf("error = %v, want %v", err, test.want)
			}
		})
	}
}

// randomInputs returns a grid where cells are shared between countries.
func randomInputs() *Inputs {
	countries := []string{"CHN", "IND", "USA", "DEU"}
	var cells []*Cell
	for i := 0; i < 40; i++ {
		af := map[string]float64{
			countries[i%4]:     0.7,
			countries[(i+1)%4]: 0.2, // partial coverage: fractions sum to 0.9
		}
		cells = append(cells, &Cell{
			TotalPM25:    float64(i%13) * 4.5,
			TotalPop:     float64(100 + 37*i),
			AreaFraction: af,
		})
	}
	w := mat.NewDense(len(cells), 3, nil)
	for i, c := range cells {
		w.Set(i, 0, c.TotalPM25*0.5)
		w.Set(i, 1, c.TotalPM25*0.3)
		w.Set(i, 2, c.TotalPM25*0.1)
	}
	return &Inputs{
		Cells:                  cells,
		BaselineDeaths:         map[string]float64{"CHN": 1000, "IND": 800, "USA": 300, "DEU": 90},
		Population:             map[string]float64{"CHN": 14e8, "IND": 13e8, "USA": 3.3e8, "DEU": 8e7},
		Consumers:              []string{"USA", "CHN", "ROW"},
		ConsumerConcentrations: w,
	}
}

func TestConservation(t *testing.T) {
	in := randomInputs()
	// A single consumer responsible for all of the concentration.
	w := mat.NewDense(len(in.Cells), 1, nil)
	for i, c := range in.Cells {
		w.Set(i, 0, c.TotalPM25)
	}
	in.Consumers = []string{"ALL"}
	in.ConsumerConcentrations = w
	cfg := testConfig()
	e, err := NewEngine(cfg, in, quietLog())
	if err != nil {
		t.Fatal(err)
	}
	const theta = 0.16
	tensor, err := e.Tensor(context.Background(), []float64{theta})
	if err != nil {
		t.Fatal(err)
	}
	attributable := e.AttributableDeaths(theta)
	if len(attributable) != len(tensor.Producers) {
		t.Errorf("%d countries with attributable deaths but %d producers", len(attributable), len(tensor.Producers))
	}
	for _, p := range tensor.Producers {
		have, _ := tensor.Deaths(0, "ALL", p)
		want := attributable[p] * in.Population[p] / cfg.PopulationUnit
		if !similar(have, want, 1e-9) {
			t.Errorf("%s: deaths %g != %g", p, have, want)
		}
	}

	// Attributable deaths equal the baseline share of each cell's
	// attributable fraction.
	baseline, _ := e.Contributions(theta)
	for _, c := range e.Index.Countries {
		k, _ := e.Index.Index(c)
		cells, weights := e.Index.CountryWeights(k)
		var want float64
		for j, i := range cells {
			rr := epi.RR(theta, cfg.GEMM.T(in.Cells[i].TotalPM25))
			want += weights[j] * epi.AttributableFraction(rr)
		}
		want *= baseline[k] / e.Index.WeightSum[k]
		if !similar(attributable[c], want, 1e-9) {
			t.Errorf("%s: attributable deaths %g != %g", c, attributable[c], want)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	var results []*DeathsTensor
	for _, workers := range []int{1, 3, 0} {
		cfg := testConfig()
		cfg.Workers = workers
		e, err := NewEngine(cfg, randomInputs(), quietLog())
		if err != nil {
			t.Fatal(err)
		}
		tensor, err := e.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		results = append(results, tensor)
	}
	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[0].Elements, results[i].Elements) {
			t.Errorf("run %d differs from run 0", i)
		}
		if !reflect.DeepEqual(results[0].Theta, results[i].Theta) {
			t.Errorf("run %d draws differ from run 0", i)
		}
	}
	r := results[0]
	if got := r.Shape; !reflect.DeepEqual(got, []int{20, 3, 4}) {
		t.Errorf("shape = %v, want [20 3 4]", got)
	}
	if !reflect.DeepEqual(r.Producers, []string{"CHN", "DEU", "IND", "USA"}) {
		t.Errorf("producers = %v", r.Producers)
	}
}

func TestTensorCancelled(t *testing.T) {
	e, err := NewEngine(testConfig(), randomInputs(), quietLog())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tensor, err := e.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if tensor != nil {
		t.Error("cancelled run returned a partial tensor")
	}
}

func ExampleEngine() {
	in := &Inputs{
		Cells: []*Cell{
			{TotalPM25: 5, TotalPop: 1000, AreaFraction: map[string]float64{"A": 1}},
			{TotalPM25: 0, TotalPop: 500, AreaFraction: map[string]float64{"B": 1}},
		},
		BaselineDeaths:         map[string]float64{"A": 10, "B": 5},
		Population:             map[string]float64{"A": 1000, "B": 500},
		Consumers:              []string{"A", "B"},
		ConsumerConcentrations: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
	}
	cfg := DefaultConfig()
	cfg.PopulationUnit = 1
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	e, err := NewEngine(cfg, in, log)
	if err != nil {
		panic(err)
	}
	tensor, err := e.Tensor(context.Background(), []float64{0.1430})
	if err != nil {
		panic(err)
	}
	pairs, global, err := tensor.Summarize(context.Background(), 1)
	if err != nil {
		panic(err)
	}
	for _, p := range pairs {
		fmt.Printf("%s consumption, %s production: %.2f deaths\n", p.Consumer, p.Producer, p.Median)
	}
	fmt.Printf("global: %.2f deaths from %d draw\n", global.Median, global.DrawsUsed)

	// Output:
	// A consumption, A production: 104.72 deaths
	// B consumption, A production: 0.00 deaths
	// global: 104.72 deaths from 1 draw
}

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

// Package tradepm calculates premature deaths caused by fine particulate
// matter (PM2.5) that is embedded in international trade. Deaths are
// attributed to the countries whose consumption drove the polluting
// production and to the countries where the production occurred, and the
// uncertainty of the health impact function is propagated through Monte
// Carlo draws of its coefficient.
package tradepm

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/tradepm/epi"
)

// Version gives the version number.
const Version = "0.1.0"

// Config holds the parameters of a mortality calculation.
type Config struct {
	// GEMM is the health impact function. Its Theta and SE fields
	// parameterize the distribution that draws are sampled from.
	GEMM epi.GEMM

	// NumDraws is the number of draws of the GEMM coefficient and
	// Seed is the random seed used to sample them.
	NumDraws int
	Seed     uint64

	// PopulationUnit is the number of people that producer populations
	// are divided by before scaling deaths. For example, 100000 results in
	// deaths per 100,000 people of producer population.
	PopulationUnit float64

	// Workers is the number of draws to calculate concurrently. If it is
	// zero, runtime.GOMAXPROCS(0) is used.
	Workers int
}

// DefaultConfig returns the configuration for NCD+LRI deaths with 500 draws.
func DefaultConfig() Config {
	return Config{
		GEMM:           epi.GEMMNCDLRI,
		NumDraws:       500,
		Seed:           42,
		PopulationUnit: 100000,
	}
}

// Validate returns an error wrapping ErrConfiguration if c cannot be used.
func (c Config) Validate() error {
	if err := c.GEMM.Validate(); err != nil {
		return fmt.Errorf("tradepm: %v: %w", err, ErrConfiguration)
	}
	if c.NumDraws <= 0 {
		return fmt.Errorf("tradepm: number of draws must be > 0 but is %d: %w", c.NumDraws, ErrConfiguration)
	}
	if !(c.PopulationUnit > 0) || math.IsInf(c.PopulationUnit, 0) {
		return fmt.Errorf("tradepm: population unit must be positive and finite but is %g: %w", c.PopulationUnit, ErrConfiguration)
	}
	if c.Workers < 0 {
		return fmt.Errorf("tradepm: number of workers must not be negative but is %d: %w", c.Workers, ErrConfiguration)
	}
	return nil
}

func (c Config) workers(draws int) int {
	n := c.Workers
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > draws {
		n = draws
	}
	return n
}

// Inputs holds the data a mortality calculation is performed on.
type Inputs struct {
	// Cells holds the grid cells.
	Cells []*Cell

	// BaselineDeaths holds the total baseline deaths in each country.
	// Its keys are the countries that deaths can be attributed to.
	BaselineDeaths map[string]float64

	// Population holds the population of each producer country.
	Population map[string]float64

	// Consumers holds the names of the consumer countries.
	Consumers []string

	// ConsumerConcentrations holds the concentration [μg/m³] in each grid
	// cell (rows) caused by consumption in each consumer country (columns).
	ConsumerConcentrations *mat.Dense
}

// Engine calculates deaths for draws of the health function coefficient.
// It holds the draw-independent state of the calculation, which is
// read-only once created, so one Engine may calculate draws concurrently.
type Engine struct {
	Config Config

	// Index is the exposure weight index of the grid cells.
	Index *ExposureWeightIndex

	// Consumers holds the consumer country names.
	Consumers []string

	// MissingBaseline holds the countries that appear in cell area
	// fractions but have no baseline deaths.
	MissingBaseline []string

	// Log receives progress and warning messages.
	Log logrus.FieldLogger

	conc       []float64 // concentration by cell
	t          []float64 // GEMM T by cell
	deaths     []float64 // baseline deaths by country
	population []float64 // scaled population by country
	hasPop     []bool
	w          *mat.Dense
}

// NewEngine checks the configuration and inputs and prepares everything
// that does not depend on the draws. If log is nil, logrus.StandardLogger()
// is used.
func NewEngine(cfg Config, in *Inputs, log logrus.FieldLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(in.Cells) == 0 {
		return nil, fmt.Errorf("tradepm: there are no grid cells: %w", ErrDataShapeMismatch)
	}
	if in.ConsumerConcentrations == nil {
		return nil, fmt.Errorf("tradepm: missing consumer concentration matrix: %w", ErrDataShapeMismatch)
	}
	rows, cols := in.ConsumerConcentrations.Dims()
	if rows != len(in.Cells) {
		return nil, fmt.Errorf("tradepm: consumer concentration matrix has %d rows but there are %d grid cells: %w",
			rows, len(in.Cells), ErrDataShapeMismatch)
	}
	if cols != len(in.Consumers) {
		return nil, fmt.Errorf("tradepm: consumer concentration matrix has %d columns but there are %d consumers: %w",
			cols, len(in.Consumers), ErrDataShapeMismatch)
	}

	countries := make([]string, 0, len(in.BaselineDeaths))
	for c := range in.BaselineDeaths {
		countries = append(countries, c)
	}
	sort.Strings(countries)

	e := &Engine{
		Config:     cfg,
		Index:      NewExposureWeightIndex(in.Cells, countries),
		Consumers:  in.Consumers,
		Log:        log,
		conc:       make([]float64, len(in.Cells)),
		t:          make([]float64, len(in.Cells)),
		deaths:     make([]float64, len(countries)),
		population: make([]float64, len(countries)),
		hasPop:     make([]bool, len(countries)),
		w:          in.ConsumerConcentrations,
	}
	for i, c := range in.Cells {
		e.conc[i] = c.TotalPM25
		e.t[i] = cfg.GEMM.T(c.TotalPM25)
	}
	for k, c := range countries {
		e.deaths[k] = in.BaselineDeaths[c]
		p, ok := in.Population[c]
		e.population[k] = p / cfg.PopulationUnit
		e.hasPop[k] = ok
	}
	e.MissingBaseline = e.Index.Unknown
	if len(e.MissingBaseline) > 0 {
		log.WithError(ErrMissingReferenceData).WithField("countries", e.MissingBaseline).Warn(
			"countries in grid cell area fractions have no baseline deaths; they are ignored")
	}
	if e.Index.PartialCells > 0 {
		log.WithField("cells", e.Index.PartialCells).Info(
			"grid cells have area fractions summing to less than one; they are not renormalized")
	}
	log.WithFields(logrus.Fields{
		"cells":     len(in.Cells),
		"countries": len(countries),
		"consumers": len(in.Consumers),
	}).Info("built exposure weight index")
	return e, nil
}

// Run samples e.Config.NumDraws draws of the GEMM coefficient and
// calculates the deaths tensor for them.
func (e *Engine) Run(ctx context.Context) (*DeathsTensor, error) {
	thetas, err := e.Config.GEMM.Draws(e.Config.NumDraws, e.Config.Seed)
	if err != nil {
		return nil, fmt.Errorf("tradepm: %v: %w", err, ErrConfiguration)
	}
	e.Log.WithFields(logrus.Fields{
		"draws": len(thetas),
		"seed":  e.Config.Seed,
	}).Info("sampled GEMM coefficient")
	return e.Tensor(ctx, thetas)
}

// relativeRisk calculates the relative risk in each cell for coefficient
// theta and stores it in rr.
func (e *Engine) relativeRisk(theta float64, rr []float64) {
	for i, t := range e.t {
		rr[i] = epi.RR(theta, t)
	}
}

// Contributions calculates the baseline mortality of each country and the
// per-cell contributions for coefficient theta.
func (e *Engine) Contributions(theta float64) (baseline []float64, c *Contributions) {
	rr := make([]float64, len(e.t))
	e.relativeRisk(theta, rr)
	baseline = make([]float64, len(e.Index.Countries))
	e.Index.Baselines(rr, e.deaths, baseline)
	c = new(Contributions)
	e.Index.Allocate(e.conc, rr, baseline, c)
	return baseline, c
}

// AttributableDeaths returns the deaths attributable to the total
// concentration in every cell for coefficient theta, by the country the
// deaths are allocated to. Countries with no attributable deaths are omitted.
func (e *Engine) AttributableDeaths(theta float64) map[string]float64 {
	_, c := e.Contributions(theta)
	out := make(map[string]float64)
	for i, conc := range e.conc {
		countries, values := c.Row(i)
		for j, k := range countries {
			out[e.Index.Countries[k]] += values[j] * conc
		}
	}
	return out
}

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
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// DeathsTensor holds deaths attributable to consumption in each consumer
// country and production in each producer country for each draw of the
// GEMM coefficient. The array dimensions are draw × consumer × producer.
type DeathsTensor struct {
	*sparse.DenseArray

	// Theta holds the GEMM coefficient of each draw.
	Theta []float64

	// Consumers and Producers hold the country names along the second
	// and third dimensions.
	Consumers, Producers []string

	// MissingPopulation holds the producers that have no population
	// and therefore zero deaths. It is not saved.
	MissingPopulation []string
}

// Slice returns the consumer × producer deaths of draw d in row-major order.
// Changes to the returned slice change t.
func (t *DeathsTensor) Slice(d int) []float64 {
	n := len(t.Consumers) * len(t.Producers)
	return t.Elements[d*n : (d+1)*n]
}

// Deaths returns the deaths for draw d, consumer c and producer p,
// and false if c or p are not in t.
func (t *DeathsTensor) Deaths(d int, c, p string) (float64, bool) {
	ci, pi := indexOf(t.Consumers, c), indexOf(t.Producers, p)
	if ci < 0 || pi < 0 {
		return 0, false
	}
	return t.Get(d, ci, pi), true
}

// DrawLabels returns a label for each draw.
func (t *DeathsTensor) DrawLabels() []string {
	out := make([]string, len(t.Theta))
	for i := range out {
		out[i] = fmt.Sprintf("theta_%03d", i)
	}
	return out
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// drawScratch holds the working memory of one worker.
type drawScratch struct {
	rr, baseline []float64
	c            Contributions

	// deaths holds unscaled deaths in producer × consumer order.
	deaths []float64
}

func (e *Engine) newScratch() *drawScratch {
	return &drawScratch{
		rr:       make([]float64, len(e.t)),
		baseline: make([]float64, len(e.Index.Countries)),
		deaths:   make([]float64, len(e.Index.Countries)*len(e.Consumers)),
	}
}

// draw calculates the consumer × country deaths for coefficient theta and
// stores them in dst. Countries that receive any contribution are
// marked in observed.
func (e *Engine) draw(theta float64, s *drawScratch, observed []bool, dst []float64) {
	e.relativeRisk(theta, s.rr)
	e.Index.Baselines(s.rr, e.deaths, s.baseline)
	e.Index.Allocate(e.conc, s.rr, s.baseline, &s.c)

	nc, nk := len(e.Consumers), len(e.Index.Countries)
	for i := range s.deaths {
		s.deaths[i] = 0
	}
	for i := 0; i < e.Index.NumCells(); i++ {
		countries, values := s.c.Row(i)
		if len(countries) == 0 {
			continue
		}
		// Each contribution adds its value times the cell's
		// consumer concentrations to the producer's row.
		wRow := e.w.RawRowView(i)
		for j, k := range countries {
			floats.AddScaled(s.deaths[k*nc:(k+1)*nc], values[j], wRow)
			observed[k] = true
		}
	}
	for j := 0; j < nc; j++ {
		for k := 0; k < nk; k++ {
			dst[j*nk+k] = s.deaths[k*nc+j] * e.population[k]
		}
	}
}

// Tensor calculates the deaths tensor for the given draws of the GEMM
// coefficient. Draws are calculated concurrently, each writing to its own
// part of the tensor. The producers in the result are the countries that
// receive a contribution in at least one draw.
//
// If ctx is cancelled before all draws are finished, the partial results
// are discarded and the context error is returned.
func (e *Engine) Tensor(ctx context.Context, thetas []float64) (*DeathsTensor, error) {
	if len(thetas) == 0 {
		return nil, fmt.Errorf("tradepm: no draws to calculate: %w", ErrConfiguration)
	}
	nd, nc, nk := len(thetas), len(e.Consumers), len(e.Index.Countries)
	out := sparse.ZerosDense(nd, nc, nk)
	sliceSize := nc * nk

	workers := e.Config.workers(nd)
	observed := make([][]bool, workers)
	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < workers; p++ {
		observed[p] = make([]bool, nk)
		p := p
		g.Go(func() error {
			s := e.newScratch()
			for d := p; d < nd; d += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				e.draw(thetas[d], s, observed[p], out.Elements[d*sliceSize:(d+1)*sliceSize])
				e.Log.WithFields(logrus.Fields{
					"draw":  d,
					"theta": thetas[d],
				}).Debug("calculated draw")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tradepm: calculating deaths: %w", err)
	}

	var producers []int
	for k := 0; k < nk; k++ {
		for p := range observed {
			if observed[p][k] {
				producers = append(producers, k)
				break
			}
		}
	}
	t := &DeathsTensor{
		DenseArray: compactProducers(out, producers),
		Theta:      append([]float64(nil), thetas...),
		Consumers:  e.Consumers,
		Producers:  make([]string, len(producers)),
	}
	for i, k := range producers {
		t.Producers[i] = e.Index.Countries[k]
		if !e.hasPop[k] {
			t.MissingPopulation = append(t.MissingPopulation, t.Producers[i])
		}
	}
	if len(t.MissingPopulation) > 0 {
		e.Log.WithError(ErrMissingReferenceData).WithField("countries", t.MissingPopulation).Warn(
			"producers have no population; their deaths are zero")
	}
	e.Log.WithFields(logrus.Fields{
		"draws":     nd,
		"consumers": nc,
		"producers": len(producers),
	}).Info("calculated deaths tensor")
	return t, nil
}

// compactProducers removes from a the producers that are not in keep,
// in place. keep must be sorted.
func compactProducers(a *sparse.DenseArray, keep []int) *sparse.DenseArray {
	nd, nc, nk := a.Shape[0], a.Shape[1], a.Shape[2]
	np := len(keep)
	if np == nk {
		return a
	}
	// Destination indices never exceed source indices, so copying
	// forward does not overwrite unread values.
	for r := 0; r < nd*nc; r++ {
		for i, k := range keep {
			a.Elements[r*np+i] = a.Elements[r*nk+k]
		}
	}
	a.Elements = a.Elements[:nd*nc*np]
	a.Shape = []int{nd, nc, np}
	a.Fix()
	return a
}

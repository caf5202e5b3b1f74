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
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// PairSummary holds the distribution of deaths across draws for one
// consumer and producer pair.
type PairSummary struct {
	Consumer, Producer string

	// Median, Low95, and High95 are the 50th, 2.5th, and 97.5th
	// percentiles of deaths across draws.
	Median, Low95, High95 float64
}

// GlobalSummary holds the distribution across draws of total deaths.
type GlobalSummary struct {
	Median, Low95, High95 float64
	DrawsUsed             int
}

// Percentile returns the q-th percentile (0 ≤ q ≤ 100) of the sorted
// values x, linearly interpolating between the two closest ranks.
// It returns NaN if x is empty.
func Percentile(x []float64, q float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	pos := q / 100 * float64(len(x)-1)
	lo := int(math.Floor(pos))
	if lo < 0 {
		return x[0]
	}
	if lo >= len(x)-1 {
		return x[len(x)-1]
	}
	frac := pos - float64(lo)
	return x[lo] + frac*(x[lo+1]-x[lo])
}

// summarize sorts x in place and returns its median and 95% interval.
func summarize(x []float64) (median, low, high float64) {
	sort.Float64s(x)
	return Percentile(x, 50), Percentile(x, 2.5), Percentile(x, 97.5)
}

// Summarize calculates the median and 95% interval across draws of deaths
// for every consumer and producer pair, and of total deaths. Pairs are
// sorted by consumer and then by decreasing median deaths, keeping the
// producer order for equal medians.
//
// The global statistics are calculated from the total deaths of each draw,
// not from the pair statistics. Pairs are reduced on workers goroutines,
// or runtime.GOMAXPROCS(0) if workers is not positive.
func (t *DeathsTensor) Summarize(ctx context.Context, workers int) ([]PairSummary, GlobalSummary, error) {
	nd, nc, np := len(t.Theta), len(t.Consumers), len(t.Producers)
	pairs := make([]PairSummary, nc*np)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < workers; p++ {
		p := p
		g.Go(func() error {
			x := make([]float64, nd)
			for i := p; i < len(pairs); i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				for d := 0; d < nd; d++ {
					x[d] = t.Elements[d*nc*np+i]
				}
				s := &pairs[i]
				s.Consumer, s.Producer = t.Consumers[i/np], t.Producers[i%np]
				s.Median, s.Low95, s.High95 = summarize(x)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, GlobalSummary{}, err
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Consumer != pairs[j].Consumer {
			return pairs[i].Consumer < pairs[j].Consumer
		}
		return pairs[i].Median > pairs[j].Median
	})

	totals := make([]float64, nd)
	for d := range totals {
		totals[d] = floats.Sum(t.Slice(d))
	}
	global := GlobalSummary{DrawsUsed: nd}
	global.Median, global.Low95, global.High95 = summarize(totals)
	return pairs, global, nil
}

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

import "github.com/spatialmodel/tradepm/epi"

// Contributions holds, for one draw, the deaths per unit concentration
// [deaths per μg/m³] in each grid cell attributed to each country,
// in compressed sparse row form. Only nonzero values are stored.
type Contributions struct {
	// RowPtr holds the start of each cell's entries in Country and Value.
	// Cell i's entries are in [RowPtr[i], RowPtr[i+1]).
	RowPtr []int

	// Country holds the country index of each entry.
	Country []int

	// Value holds the contribution of each entry.
	Value []float64
}

// Row returns the country indices and values of cell i.
func (c *Contributions) Row(i int) (countries []int, values []float64) {
	b, e := c.RowPtr[i], c.RowPtr[i+1]
	return c.Country[b:e], c.Value[b:e]
}

// reset empties c, keeping its storage, for n cells.
func (c *Contributions) reset(n int) {
	if cap(c.RowPtr) < n+1 {
		c.RowPtr = make([]int, n+1)
	}
	c.RowPtr = c.RowPtr[:n+1]
	c.RowPtr[0] = 0
	c.Country = c.Country[:0]
	c.Value = c.Value[:0]
}

// Allocate calculates the contributions of one draw and stores them in c.
// conc and rr hold the concentration and relative risk of each cell and
// baseline holds the baseline mortality of each country in index order.
//
// The attributable fraction of each cell divided by its concentration is
// distributed across the overlapping countries in proportion to their
// weights, scaled by each country's baseline mortality per unit weight.
// Cells with zero concentration or zero attributable fraction have no
// entries.
func (x *ExposureWeightIndex) Allocate(conc, rr, baseline []float64, c *Contributions) {
	n := x.NumCells()
	c.reset(n)
	for i := 0; i < n; i++ {
		var rate float64
		if conc[i] > 0 {
			rate = epi.AttributableFraction(rr[i]) / conc[i]
		}
		if rate != 0 {
			countries, weights := x.CellWeights(i)
			for j, k := range countries {
				v := rate * weights[j] * (baseline[k] / x.WeightSum[k])
				if v != 0 {
					c.Country = append(c.Country, k)
					c.Value = append(c.Value, v)
				}
			}
		}
		c.RowPtr[i+1] = len(c.Country)
	}
}

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

// Baselines calculates the baseline mortality of each country for one draw,
// given the relative risk rr in each grid cell and the total baseline
// deaths of each country in index order. Results are written to out,
// which must have one element per country.
//
// The baseline is the total deaths divided by the population-weighted
// average relative risk across the country's cells, so that the weighted
// average of baseline × rr reproduces the total. Countries without any
// overlapping cells, or whose average relative risk is not positive, get a
// baseline of 0.
func (x *ExposureWeightIndex) Baselines(rr, deaths, out []float64) {
	for k := range x.Countries {
		cells, weights := x.CountryWeights(k)
		if len(cells) == 0 {
			out[k] = 0
			continue
		}
		var hSum float64
		for j, i := range cells {
			hSum += rr[i] * weights[j]
		}
		out[k] = epi.Io(hSum/x.WeightSum[k], deaths[k])
	}
}

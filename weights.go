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

import "sort"

// partialTolerance is the amount that area fractions may sum to less than
// one before a cell is counted as partially covered.
const partialTolerance = 1e-6

// ExposureWeightIndex holds the population-weighted overlap of every grid
// cell with every country. It does not depend on the health function
// parameters, so it is built once and shared by all draws.
//
// The overlaps are stored twice in compressed sparse row form: once
// grouped by country for baseline calibration and once grouped by cell
// for mortality allocation. Entries with zero weight are not stored.
type ExposureWeightIndex struct {
	// Countries holds the country codes in index order.
	Countries []string

	// WeightSum holds the sum of weights for each country. Countries
	// without any overlapping population have a WeightSum of 1 so that
	// it can always be used as a denominator.
	WeightSum []float64

	// Unknown holds the sorted country codes that appear in cell area
	// fractions but not in Countries. They are ignored.
	Unknown []string

	// PartialCells is the number of cells whose area fractions sum to
	// more than zero but less than one. Their fractions are not
	// renormalized, so part of their population is not attributed to
	// any country.
	PartialCells int

	countryIndex map[string]int

	countryPtr     []int
	countryCells   []int
	countryWeights []float64

	cellPtr       []int
	cellCountries []int
	cellWeights   []float64
}

// NewExposureWeightIndex creates an index of the overlap between cells and
// countries, where the weight of a cell for a country is the cell population
// times the country's area fraction in that cell.
func NewExposureWeightIndex(cells []*Cell, countries []string) *ExposureWeightIndex {
	x := &ExposureWeightIndex{
		Countries:    countries,
		WeightSum:    make([]float64, len(countries)),
		countryIndex: make(map[string]int, len(countries)),
		cellPtr:      make([]int, len(cells)+1),
	}
	for i, c := range countries {
		x.countryIndex[c] = i
	}
	unknown := make(map[string]struct{})
	counts := make([]int, len(countries))
	for i, cell := range cells {
		var frac float64
		for _, c := range cell.countries() {
			frac += cell.AreaFraction[c]
			k, ok := x.countryIndex[c]
			if !ok {
				unknown[c] = struct{}{}
				continue
			}
			w := cell.AreaFraction[c] * cell.TotalPop
			if w == 0 {
				continue
			}
			x.cellCountries = append(x.cellCountries, k)
			x.cellWeights = append(x.cellWeights, w)
			x.WeightSum[k] += w
			counts[k]++
		}
		if frac > 0 && frac < 1-partialTolerance {
			x.PartialCells++
		}
		x.cellPtr[i+1] = len(x.cellCountries)
	}
	for k, w := range x.WeightSum {
		if w <= 0 {
			x.WeightSum[k] = 1
		}
	}
	for c := range unknown {
		x.Unknown = append(x.Unknown, c)
	}
	sort.Strings(x.Unknown)

	// Transpose the cell rows into country rows.
	x.countryPtr = make([]int, len(countries)+1)
	for k, n := range counts {
		x.countryPtr[k+1] = x.countryPtr[k] + n
	}
	x.countryCells = make([]int, len(x.cellCountries))
	x.countryWeights = make([]float64, len(x.cellWeights))
	next := make([]int, len(countries))
	copy(next, x.countryPtr[:len(countries)])
	for i := range cells {
		for j := x.cellPtr[i]; j < x.cellPtr[i+1]; j++ {
			k := x.cellCountries[j]
			x.countryCells[next[k]] = i
			x.countryWeights[next[k]] = x.cellWeights[j]
			next[k]++
		}
	}
	return x
}

// Index returns the index of country c and whether it is in the index.
func (x *ExposureWeightIndex) Index(c string) (int, bool) {
	k, ok := x.countryIndex[c]
	return k, ok
}

// CountryWeights returns the indices of the cells that overlap country k
// and their weights, in cell order. The returned slices must not be modified.
func (x *ExposureWeightIndex) CountryWeights(k int) (cells []int, weights []float64) {
	b, e := x.countryPtr[k], x.countryPtr[k+1]
	return x.countryCells[b:e], x.countryWeights[b:e]
}

// CellWeights returns the indices of the countries that overlap cell i and
// their weights, sorted by country code. The returned slices must not be
// modified.
func (x *ExposureWeightIndex) CellWeights(i int) (countries []int, weights []float64) {
	b, e := x.cellPtr[i], x.cellPtr[i+1]
	return x.cellCountries[b:e], x.cellWeights[b:e]
}

// NumCells returns the number of grid cells in the index.
func (x *ExposureWeightIndex) NumCells() int { return len(x.cellPtr) - 1 }

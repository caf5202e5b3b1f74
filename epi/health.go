/*
Copyright © 2017 the InMAP authors.
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

// Package epi calculates the health impacts of fine particulate matter
// with the Global Exposure Mortality Model (GEMM) of:
//
// Burnett R, et al. (2018) Global estimates of mortality associated with
// long-term exposure to outdoor fine particulate matter. Proceedings of the
// National Academy of Sciences 115(38):9592–9597.
package epi

import (
	"gonum.org/v1/gonum/floats"
)

// HRer is implemented by health impact functions that calculate the
// hazard ratio at concentration z [μg/m³].
type HRer interface {
	HR(z float64) float64
	Name() string
}

// IoRegional returns the underlying incidence in a region with reported
// incidence I, where location i has exposure weight w[i] and concentration
// z[i]. The reported incidence is divided by the weighted mean hazard ratio
// (Apte et al. 2015, Environ. Sci. Technol. 49(13):8057–8066, Eqs. 2–3).
// It returns 0 if the weights sum to zero or less.
func IoRegional(w, z []float64, hr HRer, I float64) float64 {
	wSum := floats.Sum(w)
	if wSum <= 0 {
		return 0
	}
	var weighted float64
	for i, wi := range w {
		if wi != 0 {
			weighted += wi * hr.HR(z[i])
		}
	}
	return Io(weighted/wSum, I)
}

// Io returns the underlying incidence for reported incidence I and mean
// hazard ratio hrBar, or 0 if hrBar is not positive.
func Io(hrBar, I float64) float64 {
	if hrBar <= 0 {
		return 0
	}
	return I / hrBar
}

// Outcome returns the number of cases in population p exposed to
// concentration z, given underlying incidence Io.
func Outcome(p, z, Io float64, hr HRer) float64 {
	return p * Io * (hr.HR(z) - 1)
}

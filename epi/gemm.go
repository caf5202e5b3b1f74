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

package epi

import (
	"fmt"
	"math"
)

// GEMM implements the Global Exposure Mortality Model hazard ratio function
// described in:
//
// Burnett R, Chen H, Szyszkowicz M, et al. (2018) Global estimates of
// mortality associated with long-term exposure to outdoor fine particulate
// matter. Proceedings of the National Academy of Sciences 115(38):9592–9597.
//
// The hazard ratio at concentration z is exp(Theta × T(z)), where T holds
// the parameter-independent log/logistic part of the function. Splitting
// the two allows T to be computed once per location and reused for every
// sampled value of Theta.
type GEMM struct {
	// Theta is the point estimate of the model coefficient and SE is
	// its standard error.
	Theta, SE float64

	// Alpha, Mu, and Nu are the shape parameters of the function.
	Alpha, Mu, Nu float64

	// Threshold is the counterfactual concentration [μg/m³] below which
	// health effects are assumed to be zero.
	Threshold float64

	// Label is the name of the function.
	Label string
}

// GEMMNCDLRI is the GEMM function for deaths from non-communicable diseases
// and lower respiratory infections among adults aged 25 and older
// (Table S3, compound symmetry).
var GEMMNCDLRI = GEMM{
	Theta:     0.1430,
	SE:        0.01807,
	Alpha:     1.6,
	Mu:        15.5,
	Nu:        36.8,
	Threshold: 2.4,
	Label:     "GEMM NCD+LRI",
}

// T returns the parameter-independent part of the hazard ratio exponent
// at concentration z.
func (g GEMM) T(z float64) float64 {
	z = math.Max(0, z-g.Threshold)
	if z == 0 {
		return 0
	}
	logistic := 1 / (1 + math.Exp(-(z-g.Mu)/g.Nu))
	return math.Log1p(z/g.Alpha) * logistic
}

// HR calculates the hazard ratio caused by concentration z at the point
// estimate of the model coefficient.
func (g GEMM) HR(z float64) float64 {
	return RR(g.Theta, g.T(z))
}

// Name returns the label for this function.
func (g GEMM) Name() string { return g.Label }

// Validate returns an error if any of the function constants are unusable.
func (g GEMM) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"Theta", g.Theta}, {"SE", g.SE}, {"Alpha", g.Alpha},
		{"Mu", g.Mu}, {"Nu", g.Nu}, {"Threshold", g.Threshold},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return fmt.Errorf("epi: GEMM %s must be finite but is %g", v.name, v.val)
		}
	}
	if g.SE < 0 {
		return fmt.Errorf("epi: GEMM standard error must not be negative but is %g", g.SE)
	}
	if g.Alpha <= 0 {
		return fmt.Errorf("epi: GEMM Alpha must be > 0 but is %g", g.Alpha)
	}
	if g.Nu <= 0 {
		return fmt.Errorf("epi: GEMM Nu must be > 0 but is %g", g.Nu)
	}
	return nil
}

// RR returns the relative risk exp(theta × t), floored at 1.
func RR(theta, t float64) float64 {
	return math.Max(1, math.Exp(theta*t))
}

// AttributableFraction returns the fraction of incidence attributable
// to exposure, 1 - 1/rr. Relative risks at or below 1 return 0.
func AttributableFraction(rr float64) float64 {
	if rr <= 1 {
		return 0
	}
	return 1 - 1/rr
}

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

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Draws returns n independent samples of the model coefficient drawn
// from a normal distribution with mean g.Theta and standard deviation g.SE.
// The same seed always returns the same samples.
func (g GEMM) Draws(n int, seed uint64) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("epi: number of draws must be > 0 but is %d", n)
	}
	if g.SE < 0 {
		return nil, fmt.Errorf("epi: GEMM standard error must not be negative but is %g", g.SE)
	}
	dist := distuv.Normal{
		Mu:    g.Theta,
		Sigma: g.SE,
		Src:   rand.NewSource(seed),
	}
	draws := make([]float64, n)
	for i := range draws {
		draws[i] = dist.Rand()
	}
	return draws, nil
}

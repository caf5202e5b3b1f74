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
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Cell holds the exposure data for a single grid cell.
type Cell struct {
	// TotalPM25 is the total PM2.5 concentration [μg/m³], the sum of
	// production-related and biogenic contributions.
	TotalPM25 float64

	// TotalPop is the number of people in the cell.
	TotalPop float64

	// AreaFraction maps country codes to the fraction of the cell
	// population attributed to that country. Fractions need not sum to 1.
	AreaFraction map[string]float64
}

// countries returns the country codes of c in sorted order.
func (c *Cell) countries() []string {
	out := make([]string, 0, len(c.AreaFraction))
	for k := range c.AreaFraction {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var areaFractionReplacer = strings.NewReplacer(
	"'", `"`,
	"np.float64(", "",
	")", "",
)

// ParseAreaFraction parses a country to area fraction mapping. It accepts
// JSON objects as well as Python dictionary literals, with single-quoted
// keys and values optionally wrapped in np.float64(...).
// An empty string is an empty mapping.
func ParseAreaFraction(s string) (map[string]float64, error) {
	s = strings.TrimSpace(s)
	out := make(map[string]float64)
	if s == "" || s == "{}" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(areaFractionReplacer.Replace(s)), &out); err != nil {
		return make(map[string]float64), fmt.Errorf("tradepm: parsing area fraction %q: %v: %w", s, err, ErrMalformedAreaFraction)
	}
	for c, f := range out {
		if f < 0 || math.IsInf(f, 0) {
			return make(map[string]float64), fmt.Errorf("tradepm: area fraction %g for country %s is invalid: %w", f, c, ErrMalformedAreaFraction)
		}
	}
	return out, nil
}

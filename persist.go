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
	"fmt"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Save writes t to rw in NetCDF format. The deaths are stored in variable
// "deaths" with dimensions draw, consumer, and producer, the GEMM
// coefficients in variable "theta", and the consumer, producer, and draw
// labels as comma-separated global attributes.
func (t *DeathsTensor) Save(rw cdf.ReaderWriterAt) error {
	nd, nc, np := len(t.Theta), len(t.Consumers), len(t.Producers)
	if nd == 0 || nc == 0 || np == 0 {
		return fmt.Errorf("tradepm: saving deaths tensor: cannot save empty dimension (draws=%d, consumers=%d, producers=%d)", nd, nc, np)
	}
	for _, labels := range [][]string{t.Consumers, t.Producers} {
		for _, l := range labels {
			if l == "" || strings.Contains(l, ",") {
				return fmt.Errorf("tradepm: saving deaths tensor: invalid country name %q", l)
			}
		}
	}

	h := cdf.NewHeader([]string{"draw", "consumer", "producer"}, []int{nd, nc, np})
	h.AddVariable("deaths", []string{"draw", "consumer", "producer"}, []float64{0})
	h.AddAttribute("deaths", "description", "Deaths attributable to consumption in consumer countries caused by production in producer countries")
	h.AddAttribute("deaths", "units", "deaths")
	h.AddVariable("theta", []string{"draw"}, []float64{0})
	h.AddAttribute("theta", "description", "GEMM coefficient of each draw")
	h.AddAttribute("", "consumers", strings.Join(t.Consumers, ","))
	h.AddAttribute("", "producers", strings.Join(t.Producers, ","))
	h.AddAttribute("", "draws", strings.Join(t.DrawLabels(), ","))
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("tradepm: creating deaths tensor netcdf file: %v", err)
	}

	f, err := cdf.Create(rw, h)
	if err != nil {
		return fmt.Errorf("tradepm: creating deaths tensor netcdf file: %v", err)
	}
	w := f.Writer("deaths", []int{0, 0, 0}, []int{nd, nc, np})
	if _, err := w.Write(t.Elements); err != nil {
		return fmt.Errorf("tradepm: writing deaths: %v", err)
	}
	w = f.Writer("theta", []int{0}, []int{nd})
	if _, err := w.Write(t.Theta); err != nil {
		return fmt.Errorf("tradepm: writing theta: %v", err)
	}
	return nil
}

// LoadDeathsTensor reads a deaths tensor that was written by Save.
func LoadDeathsTensor(rw cdf.ReaderWriterAt) (*DeathsTensor, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("tradepm: opening deaths tensor netcdf file: %v", err)
	}
	consumers, err := labelAttribute(f.Header, "consumers")
	if err != nil {
		return nil, err
	}
	producers, err := labelAttribute(f.Header, "producers")
	if err != nil {
		return nil, err
	}
	dims := f.Header.Lengths("deaths")
	if len(dims) != 3 || dims[1] != len(consumers) || dims[2] != len(producers) {
		return nil, fmt.Errorf("tradepm: deaths variable has shape %v but there are %d consumers and %d producers: %w",
			dims, len(consumers), len(producers), ErrDataShapeMismatch)
	}
	deaths, err := readFullVar64(f, "deaths")
	if err != nil {
		return nil, err
	}
	theta, err := readFullVar64(f, "theta")
	if err != nil {
		return nil, err
	}
	if len(theta) != dims[0] {
		return nil, fmt.Errorf("tradepm: there are %d theta values but %d draws: %w", len(theta), dims[0], ErrDataShapeMismatch)
	}
	a := sparse.ZerosDense(dims...)
	copy(a.Elements, deaths)
	return &DeathsTensor{
		DenseArray: a,
		Theta:      theta,
		Consumers:  consumers,
		Producers:  producers,
	}, nil
}

func labelAttribute(h *cdf.Header, name string) ([]string, error) {
	s, ok := h.GetAttribute("", name).(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("tradepm: deaths tensor netcdf file is missing the %s attribute", name)
	}
	return strings.Split(s, ","), nil
}

func readFullVar64(f *cdf.File, varName string) ([]float64, error) {
	r := f.Reader(varName, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("tradepm: reading %s: %v", varName, err)
	}
	v, ok := buf.([]float64)
	if !ok {
		return nil, fmt.Errorf("tradepm: variable %s is not double precision", varName)
	}
	return v, nil
}

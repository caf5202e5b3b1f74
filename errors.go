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

import "errors"

// Kinds of errors returned by this package. Returned errors wrap one of
// these, so callers can check for them with errors.Is.
var (
	// ErrConfiguration indicates an invalid draw count, standard error,
	// or health function constant. It is returned before any sampling.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataShapeMismatch indicates that input tables disagree on the
	// number of grid cells or countries.
	ErrDataShapeMismatch = errors.New("data shape mismatch")

	// ErrMissingReferenceData indicates a country absent from the
	// population or baseline mortality tables. Such countries contribute
	// nothing; they are logged and listed in Engine.MissingBaseline and
	// DeathsTensor.MissingPopulation rather than returned as errors.
	ErrMissingReferenceData = errors.New("missing reference data")

	// ErrMalformedAreaFraction indicates a grid cell area fraction
	// mapping that cannot be parsed.
	ErrMalformedAreaFraction = errors.New("malformed area fraction")
)

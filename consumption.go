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
	"fmt"

	"github.com/ctessum/requestcache"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/tradepm/internal/hash"
)

// BuildConsumerMatrix calculates the concentration in each grid cell caused
// by consumption in each consumer country, where factors holds the
// concentration in each grid cell (rows) per unit of output of each
// producer sector (columns) and output holds the output of each producer
// sector (rows) required by each consumer country (columns).
func BuildConsumerMatrix(factors, output mat.Matrix) (*mat.Dense, error) {
	nCells, nSectors := factors.Dims()
	r, nConsumers := output.Dims()
	if r != nSectors {
		return nil, fmt.Errorf("tradepm: there are %d concentration factor sectors but %d output sectors: %w",
			nSectors, r, ErrDataShapeMismatch)
	}
	m := mat.NewDense(nCells, nConsumers, nil)
	m.Mul(factors, output)
	return m, nil
}

// ConsumerMatrixCache holds consumer concentration matrices that have
// already been calculated.
type ConsumerMatrixCache struct {
	cache *requestcache.Cache
}

type consumerMatrixRequest struct {
	factors, output *mat.Dense
}

// NewConsumerMatrixCache creates a cache holding up to memCacheSize
// matrices in memory. If dir is not empty, matrices are also stored in
// that directory.
func NewConsumerMatrixCache(memCacheSize int, dir string) *ConsumerMatrixCache {
	f := func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*consumerMatrixRequest)
		return BuildConsumerMatrix(r.factors, r.output)
	}
	if dir == "" {
		return &ConsumerMatrixCache{cache: requestcache.NewCache(f, 1, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize))}
	}
	return &ConsumerMatrixCache{cache: requestcache.NewCache(f, 1, requestcache.Deduplicate(),
		requestcache.Memory(memCacheSize), requestcache.Disk(dir, matrixMarshal, matrixUnmarshal))}
}

// Get returns the consumer concentration matrix for the given concentration
// factors and output, calculating it if it is not in the cache.
// The returned matrix must not be modified.
func (c *ConsumerMatrixCache) Get(ctx context.Context, factors, output *mat.Dense) (*mat.Dense, error) {
	key := "consumer_" + hash.Hash(factors, output)
	r := c.cache.NewRequest(ctx, &consumerMatrixRequest{factors: factors, output: output}, key)
	result, err := r.Result()
	if err != nil {
		return nil, err
	}
	return result.(*mat.Dense), nil
}

// matrixMarshal converts a matrix to a byte array for storing in a cache.
func matrixMarshal(data interface{}) ([]byte, error) {
	i := data.(*interface{})
	m := (*i).(*mat.Dense)
	return m.MarshalBinary()
}

// matrixUnmarshal converts a byte array to a matrix after storing it in a cache.
func matrixUnmarshal(b []byte) (interface{}, error) {
	m := new(mat.Dense)
	err := m.UnmarshalBinary(b)
	return m, err
}

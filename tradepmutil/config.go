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

package tradepmutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spatialmodel/tradepm"
	"github.com/spatialmodel/tradepm/epi"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ModelConfig assembles the calculation configuration from cfg
// and checks that it is valid.
func ModelConfig(cfg *viper.Viper) (tradepm.Config, error) {
	c := tradepm.Config{
		GEMM: epi.GEMM{Label: epi.GEMMNCDLRI.Label},
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"theta", &c.GEMM.Theta},
		{"theta_se", &c.GEMM.SE},
		{"alpha", &c.GEMM.Alpha},
		{"mu", &c.GEMM.Mu},
		{"nu", &c.GEMM.Nu},
		{"threshold", &c.GEMM.Threshold},
		{"population_unit", &c.PopulationUnit},
	} {
		v, err := cast.ToFloat64E(cfg.Get(f.name))
		if err != nil {
			return c, fmt.Errorf("tradepmutil: invalid value for %s: %v: %w", f.name, err, tradepm.ErrConfiguration)
		}
		*f.v = v
	}
	var err error
	if c.NumDraws, err = cast.ToIntE(cfg.Get("draws")); err != nil {
		return c, fmt.Errorf("tradepmutil: invalid value for draws: %v: %w", err, tradepm.ErrConfiguration)
	}
	seed, err := cast.ToInt64E(cfg.Get("seed"))
	if err != nil {
		return c, fmt.Errorf("tradepmutil: invalid value for seed: %v: %w", err, tradepm.ErrConfiguration)
	}
	c.Seed = uint64(seed)
	if c.Workers, err = checkWorkers(cfg.Get("workers")); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// checkWorkers converts the number of workers to an integer.
func checkWorkers(v interface{}) (int, error) {
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("tradepmutil: invalid value for workers: %v: %w", err, tradepm.ErrConfiguration)
	}
	if n < 0 {
		return 0, fmt.Errorf("tradepmutil: number of workers must not be negative but is %d: %w", n, tradepm.ErrConfiguration)
	}
	return n, nil
}

// InputFiles holds the locations of the inputs of a calculation.
type InputFiles struct {
	Cells, BaselineDeaths, Population, ConsumerMatrix string

	// BiogenicShapefile and ProductionConcentrations are optional.
	BiogenicShapefile, ProductionConcentrations string

	// Sectors are the production concentration columns to use.
	Sectors []string
}

// OutputFiles holds the locations of the outputs of a calculation.
type OutputFiles struct {
	Pairs, Global string

	// Tensor is optional when running a calculation.
	Tensor string
}

// ConsumerMatrixInputs holds the locations used to build a consumer
// concentration matrix.
type ConsumerMatrixInputs struct {
	Factors, SectorOutput string
	ConsumerMatrix        string
	CacheDir              string
}

// RunFiles returns the input and output locations for a calculation.
func RunFiles(cfg *viper.Viper) (InputFiles, OutputFiles, error) {
	in := InputFiles{
		Cells:                    os.ExpandEnv(cfg.GetString("cells")),
		BaselineDeaths:           os.ExpandEnv(cfg.GetString("baseline_deaths")),
		Population:               os.ExpandEnv(cfg.GetString("population")),
		ConsumerMatrix:           os.ExpandEnv(cfg.GetString("consumer_matrix")),
		BiogenicShapefile:        os.ExpandEnv(cfg.GetString("biogenic_shapefile")),
		ProductionConcentrations: os.ExpandEnv(cfg.GetString("production_concentrations")),
		Sectors:                  expandStringSlice(cast.ToStringSlice(cfg.Get("sectors"))),
	}
	for _, f := range []struct{ name, v string }{
		{"cells", in.Cells},
		{"baseline_deaths", in.BaselineDeaths},
		{"population", in.Population},
		{"consumer_matrix", in.ConsumerMatrix},
	} {
		if err := checkInputFile(f.name, f.v); err != nil {
			return in, OutputFiles{}, err
		}
	}
	if in.ProductionConcentrations != "" && len(in.Sectors) == 0 {
		return in, OutputFiles{}, fmt.Errorf("tradepmutil: production_concentrations is specified but there are no sectors: %w",
			tradepm.ErrConfiguration)
	}
	out, err := outputFiles(cfg)
	return in, out, err
}

// SummarizeFiles returns the locations of a saved deaths tensor and the
// summaries to calculate from it.
func SummarizeFiles(cfg *viper.Viper) (OutputFiles, error) {
	out, err := outputFiles(cfg)
	if err != nil {
		return out, err
	}
	if err := checkInputFile("output_tensor", out.Tensor); err != nil {
		return out, err
	}
	return out, nil
}

// ConsumerMatrixFiles returns the locations used to build a consumer
// concentration matrix.
func ConsumerMatrixFiles(cfg *viper.Viper) (ConsumerMatrixInputs, error) {
	f := ConsumerMatrixInputs{
		Factors:        os.ExpandEnv(cfg.GetString("factors")),
		SectorOutput:   os.ExpandEnv(cfg.GetString("sector_output")),
		ConsumerMatrix: os.ExpandEnv(cfg.GetString("consumer_matrix")),
		CacheDir:       os.ExpandEnv(cfg.GetString("cache_dir")),
	}
	if err := checkInputFile("factors", f.Factors); err != nil {
		return f, err
	}
	if err := checkInputFile("sector_output", f.SectorOutput); err != nil {
		return f, err
	}
	if err := checkOutputFile("consumer_matrix", f.ConsumerMatrix); err != nil {
		return f, err
	}
	return f, nil
}

func outputFiles(cfg *viper.Viper) (OutputFiles, error) {
	out := OutputFiles{
		Pairs:  os.ExpandEnv(cfg.GetString("output_pairs")),
		Global: os.ExpandEnv(cfg.GetString("output_global")),
		Tensor: os.ExpandEnv(cfg.GetString("output_tensor")),
	}
	if err := checkOutputFile("output_pairs", out.Pairs); err != nil {
		return out, err
	}
	if err := checkOutputFile("output_global", out.Global); err != nil {
		return out, err
	}
	return out, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkInputFile makes sure that a required input location is specified.
func checkInputFile(name, f string) error {
	if f == "" {
		return fmt.Errorf("tradepmutil: you need to specify the %s configuration variable: %w", name, tradepm.ErrConfiguration)
	}
	return nil
}

// checkOutputFile makes sure that an output location is specified
// and its directory exists.
func checkOutputFile(name, f string) error {
	if f == "" {
		return fmt.Errorf("tradepmutil: you need to specify the %s configuration variable: %w", name, tradepm.ErrConfiguration)
	}
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return fmt.Errorf("tradepmutil: the %s directory doesn't exist: %v: %w", name, err, tradepm.ErrConfiguration)
	}
	return nil
}

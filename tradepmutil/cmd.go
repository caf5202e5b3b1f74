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

// Package tradepmutil contains the command-line interface for calculating
// trade-embodied PM2.5 deaths.
package tradepmutil

import (
	"fmt"

	"github.com/spatialmodel/tradepm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	def := tradepm.DefaultConfig()
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "theta",
			usage: `
              theta is the mean of the GEMM coefficient.`,
			defaultVal: def.GEMM.Theta,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "theta_se",
			usage: `
              theta_se is the standard error of the GEMM coefficient.`,
			defaultVal: def.GEMM.SE,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "alpha",
			usage: `
              alpha is the GEMM concentration transformation parameter.`,
			defaultVal: def.GEMM.Alpha,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "mu",
			usage: `
              mu is the location of the GEMM logistic weighting function [μg/m³].`,
			defaultVal: def.GEMM.Mu,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "nu",
			usage: `
              nu is the scale of the GEMM logistic weighting function [μg/m³].`,
			defaultVal: def.GEMM.Nu,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "threshold",
			usage: `
              threshold is the counterfactual concentration below which there
              is no health effect [μg/m³].`,
			defaultVal: def.GEMM.Threshold,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "draws",
			usage: `
              draws is the number of Monte Carlo draws of the GEMM coefficient.`,
			defaultVal: def.NumDraws,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "seed",
			usage: `
              seed is the random seed used to sample the GEMM coefficient.`,
			defaultVal: int(def.Seed),
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "population_unit",
			usage: `
              population_unit is the number of people that producer populations
              are divided by before deaths are scaled by them. Set it to 1 to
              scale by the raw population.`,
			defaultVal: def.PopulationUnit,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "workers",
			usage: `
              workers is the number of draws to process concurrently. If it is 0,
              the number of available processors is used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), summarizeCmd.Flags()},
		},
		{
			name: "cells",
			usage: `
              cells is the path to the grid cell CSV table, which must have
              columns TotalPM25, TotalPop and area_fraction. It can include
              environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "baseline_deaths",
			usage: `
              baseline_deaths is the path to a JSON object holding the total
              baseline deaths in each country.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "population",
			usage: `
              population is the path to a JSON object holding the population of
              each country.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "consumer_matrix",
			usage: `
              consumer_matrix is the path to the CSV table of the concentration in
              each grid cell (rows) caused by consumption in each consumer country
              (columns). The consumermatrix command writes it to this location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), consumerMatrixCmd.Flags()},
		},
		{
			name: "biogenic_shapefile",
			usage: `
              biogenic_shapefile is the optional path to a shapefile with a
              TotalPM25 attribute holding the biogenic concentration in each grid
              cell. If it or production_concentrations is specified, the grid
              cell concentrations are replaced by their sum.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "production_concentrations",
			usage: `
              production_concentrations is the optional path to a directory holding
              a CSV table <country>.csv for each country in baseline_deaths, with
              the concentration in each grid cell caused by production in each
              sector.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "sectors",
			usage: `
              sectors lists the production concentration columns to sum.`,
			defaultVal: []string{"Total"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "output_pairs",
			usage: `
              output_pairs is the path where the consumer/producer death summary
              is written. If it ends in .xlsx, an Excel workbook is written;
              otherwise a CSV table.`,
			defaultVal: "pair_deaths.csv",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), summarizeCmd.Flags()},
		},
		{
			name: "output_global",
			usage: `
              output_global is the path where the global death summary is written.`,
			defaultVal: "global_deaths.csv",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), summarizeCmd.Flags()},
		},
		{
			name: "output_tensor",
			usage: `
              output_tensor is the path of the NetCDF file holding deaths for every
              draw. The run command writes it if it is specified and the summarize
              command reads it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), summarizeCmd.Flags()},
		},
		{
			name: "factors",
			usage: `
              factors is the path to the CSV table of the concentration in each
              grid cell (rows) per unit output of each producer sector (columns).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{consumerMatrixCmd.Flags()},
		},
		{
			name: "sector_output",
			usage: `
              sector_output is the path to the CSV table of the output of each
              producer sector (rows) required by final demand in each consumer
              country (columns). Its row labels must match the factors columns.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{consumerMatrixCmd.Flags()},
		},
		{
			name: "cache_dir",
			usage: `
              cache_dir is an optional directory where consumer matrices are
              cached between runs.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{consumerMatrixCmd.Flags()},
		},
		{
			name: "logfile",
			usage: `
              logfile is the path to an optional log file. Log messages are always
              written to standard output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name:      "verbose",
			shorthand: "v",
			usage: `
              verbose turns on debug logging, including a message for every draw.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("TRADEPM")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(summarizeCmd)
	Root.AddCommand(consumerMatrixCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("tradepmutil: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "tradepm",
	Short: "Premature deaths from PM2.5 embodied in international trade.",
	Long: `tradepm calculates premature deaths caused by fine particulate matter
(PM2.5) pollution and attributes them to the countries whose consumption drove
the polluting production and the countries where the production took place.
Uncertainty in the GEMM health impact function is propagated with Monte Carlo
draws of its coefficient.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'TRADEPM_var' where 'var' is the
name of the variable to be set. File paths are allowed to contain environment
variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of tradepm.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("tradepm v%s\n", tradepm.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Calculate trade-embodied deaths.",
	Long: `run samples the GEMM coefficient, calculates deaths attributable to each
consumer and producer country for every draw, and writes summaries of the
results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ModelConfig(Cfg)
		if err != nil {
			return err
		}
		in, out, err := RunFiles(Cfg)
		if err != nil {
			return err
		}
		log, closeLog, err := newLogger(cmd.OutOrStdout(), Cfg.GetString("logfile"), Cfg.GetBool("verbose"))
		if err != nil {
			return err
		}
		defer closeLog()
		return Run(cmd.Context(), log, cfg, in, out)
	},
	DisableAutoGenTag: true,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a saved deaths tensor.",
	Long: `summarize reads the deaths for every draw from the NetCDF file written by
the run command and writes the consumer/producer and global summaries
without recalculating the draws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := SummarizeFiles(Cfg)
		if err != nil {
			return err
		}
		workers, err := checkWorkers(Cfg.Get("workers"))
		if err != nil {
			return err
		}
		log, closeLog, err := newLogger(cmd.OutOrStdout(), Cfg.GetString("logfile"), Cfg.GetBool("verbose"))
		if err != nil {
			return err
		}
		defer closeLog()
		return Summarize(cmd.Context(), log, out, workers)
	},
	DisableAutoGenTag: true,
}

var consumerMatrixCmd = &cobra.Command{
	Use:   "consumermatrix",
	Short: "Build the consumer concentration matrix.",
	Long: `consumermatrix multiplies the per-sector concentration factors by the
sector output required by each consumer country and writes the resulting
concentration in each grid cell caused by consumption in each country to the
consumer_matrix location.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := ConsumerMatrixFiles(Cfg)
		if err != nil {
			return err
		}
		log, closeLog, err := newLogger(cmd.OutOrStdout(), Cfg.GetString("logfile"), Cfg.GetBool("verbose"))
		if err != nil {
			return err
		}
		defer closeLog()
		return ConsumerMatrix(cmd.Context(), log, files)
	},
	DisableAutoGenTag: true,
}

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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/tradepm"
	"gonum.org/v1/gonum/mat"
)

// newLogger returns a logger that writes to w and, if logFile is not
// empty, to logFile. The returned function closes the log file.
func newLogger(w io.Writer, logFile string, verbose bool) (*logrus.Logger, func(), error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if logFile == "" {
		log.SetOutput(w)
		return log, func() {}, nil
	}
	f, err := os.Create(os.ExpandEnv(logFile))
	if err != nil {
		return nil, nil, fmt.Errorf("tradepmutil: problem creating log file: %v", err)
	}
	log.SetOutput(io.MultiWriter(w, f))
	return log, func() { f.Close() }, nil
}

// Run loads the inputs, calculates deaths for every draw of the GEMM
// coefficient, and writes the summaries and, if out.Tensor is specified,
// the deaths for every draw.
func Run(ctx context.Context, log logrus.FieldLogger, cfg tradepm.Config, in InputFiles, out OutputFiles) error {
	startTime := time.Now()

	inputs, err := LoadInputs(ctx, log, in)
	if err != nil {
		return err
	}
	e, err := tradepm.NewEngine(cfg, inputs, log)
	if err != nil {
		return err
	}
	var total float64
	for _, v := range e.AttributableDeaths(cfg.GEMM.Theta) {
		total += v
	}
	log.WithFields(logrus.Fields{
		"theta":  cfg.GEMM.Theta,
		"deaths": total,
	}).Info("attributable deaths at mean GEMM coefficient")

	t, err := e.Run(ctx)
	if err != nil {
		return err
	}
	if err := summarize(ctx, log, t, out, cfg.Workers); err != nil {
		return err
	}
	switch {
	case out.Tensor == "":
	case len(t.Producers) == 0:
		log.WithField("file", out.Tensor).Warn("no producer receives any deaths; not saving deaths tensor")
	default:
		if err := saveTensor(t, out.Tensor); err != nil {
			return err
		}
		log.WithField("file", out.Tensor).Info("saved deaths tensor")
	}
	log.WithField("elapsed", time.Since(startTime).Round(time.Millisecond)).Info("finished")
	return nil
}

// LoadInputs reads the calculation inputs. If production concentrations or
// a biogenic shapefile are specified, the grid cell concentrations are
// replaced by their sum.
func LoadInputs(ctx context.Context, log logrus.FieldLogger, in InputFiles) (*tradepm.Inputs, error) {
	var inputs tradepm.Inputs
	var malformed []int
	if err := readFile(in.Cells, func(r io.Reader) (err error) {
		inputs.Cells, malformed, err = tradepm.ReadCells(r, log)
		return err
	}); err != nil {
		return nil, err
	}
	if err := readFile(in.BaselineDeaths, func(r io.Reader) (err error) {
		inputs.BaselineDeaths, err = tradepm.ReadCountryTable(r)
		return err
	}); err != nil {
		return nil, err
	}
	if err := readFile(in.Population, func(r io.Reader) (err error) {
		inputs.Population, err = tradepm.ReadCountryTable(r)
		return err
	}); err != nil {
		return nil, err
	}
	if err := readFile(in.ConsumerMatrix, func(r io.Reader) (err error) {
		inputs.Consumers, inputs.ConsumerConcentrations, err = tradepm.ReadConsumerMatrix(r)
		return err
	}); err != nil {
		return nil, err
	}

	var production, biogenic []float64
	if in.ProductionConcentrations != "" {
		countries := make([]string, 0, len(inputs.BaselineDeaths))
		for c := range inputs.BaselineDeaths {
			countries = append(countries, c)
		}
		sort.Strings(countries)
		var err error
		production, err = tradepm.ReadProductionConcentrations(ctx, in.ProductionConcentrations, countries, in.Sectors)
		if err != nil {
			return nil, err
		}
	}
	if in.BiogenicShapefile != "" {
		var err error
		biogenic, err = tradepm.ReadShapefileColumn(in.BiogenicShapefile, "TotalPM25")
		if err != nil {
			return nil, err
		}
	}
	if err := tradepm.MergeConcentrations(inputs.Cells, production, biogenic); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"cells":          len(inputs.Cells),
		"malformed":      len(malformed),
		"countries":      len(inputs.BaselineDeaths),
		"consumers":      len(inputs.Consumers),
		"merged_sources": production != nil || biogenic != nil,
	}).Info("loaded inputs")
	return &inputs, nil
}

// readFile opens filename and passes it to read.
func readFile(filename string, read func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("tradepmutil: opening input file: %v", err)
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("tradepmutil: reading %s: %w", filename, err)
	}
	return nil
}

// Summarize reads the deaths tensor saved at out.Tensor and writes its
// summaries to out.Pairs and out.Global.
func Summarize(ctx context.Context, log logrus.FieldLogger, out OutputFiles, workers int) error {
	f, err := os.Open(out.Tensor)
	if err != nil {
		return fmt.Errorf("tradepmutil: opening deaths tensor: %v", err)
	}
	defer f.Close()
	t, err := tradepm.LoadDeathsTensor(f)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":      out.Tensor,
		"draws":     len(t.Theta),
		"consumers": len(t.Consumers),
		"producers": len(t.Producers),
	}).Info("loaded deaths tensor")
	return summarize(ctx, log, t, out, workers)
}

func summarize(ctx context.Context, log logrus.FieldLogger, t *tradepm.DeathsTensor, out OutputFiles, workers int) error {
	pairs, g, err := t.Summarize(ctx, workers)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(out.Pairs), ".xlsx") {
		if err := tradepm.WritePairsXLSX(out.Pairs, pairs, g); err != nil {
			return err
		}
	} else if err := writeFile(out.Pairs, func(w io.Writer) error { return tradepm.WritePairsCSV(w, pairs) }); err != nil {
		return err
	}
	if err := writeFile(out.Global, func(w io.Writer) error { return tradepm.WriteGlobalCSV(w, g) }); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"pairs":  len(pairs),
		"median": g.Median,
		"low95":  g.Low95,
		"high95": g.High95,
	}).Info("wrote summaries")
	return nil
}

// writeFile creates filename and passes it to write.
func writeFile(filename string, write func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("tradepmutil: creating output file: %v", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("tradepmutil: writing %s: %w", filename, err)
	}
	return f.Close()
}

func saveTensor(t *tradepm.DeathsTensor, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("tradepmutil: creating deaths tensor file: %v", err)
	}
	if err := t.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ConsumerMatrix builds the consumer concentration matrix from per-sector
// concentration factors and sector output and writes it to
// f.ConsumerMatrix. If f.CacheDir is specified, the matrix is cached there.
func ConsumerMatrix(ctx context.Context, log logrus.FieldLogger, f ConsumerMatrixInputs) error {
	var cells, sectors, outSectors, consumers []string
	var factors, output *mat.Dense
	if err := readFile(f.Factors, func(r io.Reader) (err error) {
		cells, sectors, factors, err = tradepm.ReadMatrixCSV(r)
		return err
	}); err != nil {
		return err
	}
	if err := readFile(f.SectorOutput, func(r io.Reader) (err error) {
		outSectors, consumers, output, err = tradepm.ReadMatrixCSV(r)
		return err
	}); err != nil {
		return err
	}
	if len(outSectors) != len(sectors) {
		return fmt.Errorf("tradepmutil: there are %d concentration factor sectors but %d output sectors: %w",
			len(sectors), len(outSectors), tradepm.ErrDataShapeMismatch)
	}
	for i, s := range sectors {
		if outSectors[i] != s {
			return fmt.Errorf("tradepmutil: concentration factor sector %d is %s but output sector %d is %s: %w",
				i, s, i, outSectors[i], tradepm.ErrDataShapeMismatch)
		}
	}

	m, err := tradepm.NewConsumerMatrixCache(1, f.CacheDir).Get(ctx, factors, output)
	if err != nil {
		return err
	}
	if err := writeFile(f.ConsumerMatrix, func(w io.Writer) error {
		return tradepm.WriteMatrixCSV(w, cells, consumers, m)
	}); err != nil {
		return err
	}
	r, c := m.Dims()
	log.WithFields(logrus.Fields{
		"cells":     r,
		"consumers": c,
		"file":      f.ConsumerMatrix,
	}).Info("wrote consumer concentration matrix")
	return nil
}

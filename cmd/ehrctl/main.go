// Command ehrctl runs the preprocessing pipeline over a CSV or Excel file
// from the command line and writes the matrix, encoding map and quality
// report next to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"ehrkit/internal/config"
	"ehrkit/internal/dataset"
	"ehrkit/internal/imputer"
	"ehrkit/internal/infrastructure"
	"ehrkit/internal/pipeline"
	"ehrkit/pkg/contracts/domain"
)

func main() {
	var (
		input         = flag.String("input", "", "input CSV or Excel file (required)")
		outDir        = flag.String("out", "exports", "output directory")
		encoding      = flag.String("encoding", "one_hot", "global encoding strategy: one_hot, ordinal, count, hash")
		imputation    = flag.String("imputation", "mean", "global imputation strategy: mean, median, mode, knn, chained")
		encodeMissing = flag.Bool("encode-missing", false, "encode missing categorical cells as a missing category")
		threshold     = flag.Int("threshold", 10, "max distinct values for a column to classify as categorical")
		logLevel      = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := infrastructure.InitializeLogger(config.LoggingConfig{
		Level:  *logLevel,
		Output: "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if !domain.EncodingStrategy(*encoding).Valid() {
		fmt.Fprintf(os.Stderr, "unknown encoding strategy %q\n", *encoding)
		os.Exit(2)
	}
	if !imputer.Strategy(*imputation).Valid() {
		fmt.Fprintf(os.Stderr, "unknown imputation strategy %q\n", *imputation)
		os.Exit(2)
	}

	cfg := config.PipelineConfig{
		CardinalityThreshold: *threshold,
		OutlierSigma:         3,
		ConvergenceEpsilon:   1e-3,
		MaxIterations:        10,
		Neighbors:            5,
		Workers:              4,
		EncodeMissing:        *encodeMissing,
		EncodingStrategy:     *encoding,
		ImputationStrategy:   *imputation,
		DateFormats:          []string{"2006-01-02", "2006-01-02 15:04:05", "02/01/2006"},
	}

	reader := dataset.NewReader(logger)
	rs, err := reader.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", *input, err)
		os.Exit(1)
	}

	manager := pipeline.NewManager(logger, cfg, nil)
	state, err := manager.Execute(context.Background(), rs, pipeline.RunOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline failed: %v\n", err)
		os.Exit(1)
	}
	result := state.Result()

	base := strings.TrimSuffix(*input, ".csv")
	base = strings.TrimSuffix(base, ".xlsx")
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}

	writer := dataset.NewWriter(logger, *outDir)
	outputs := []struct {
		name  string
		write func(string) error
	}{
		{base + "_matrix.csv", func(n string) error { return writer.WriteMatrixCSV(n, result.Matrix) }},
		{base + "_report.csv", func(n string) error { return writer.WriteReportCSV(n, result.Report) }},
		{base + "_encoding.json", func(n string) error { return writer.WriteJSON(n, result.EncodingMap) }},
		{base + "_result.json", func(n string) error { return writer.WriteJSON(n, result) }},
	}
	for _, out := range outputs {
		if err := out.write(out.name); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("run %s completed: %d rows, %d matrix columns, %d warnings\n",
		result.RunID, rs.NumRows(), result.Matrix.NumCols(), len(result.Report.Warnings))
}

package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gva-data/harvester/internal/harvest"
	"github.com/gva-data/harvester/internal/pipeline"
	"github.com/gva-data/harvester/internal/session"
	"github.com/gva-data/harvester/internal/sink"
	"github.com/gva-data/harvester/internal/source"
)

func newHarvestCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Fetches and extracts every incident in the input extract",
		Long: `Reads an upstream CSV extract, fetches each incident's detail page
concurrently through the challenge-aware session, and writes one
schema-complete output row per incident. Rows whose page could not be
harvested are kept and flagged rather than aborting the batch.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, inputPath, outputPath)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to the upstream extract (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "path to the output file (required)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runHarvest(cmd *cobra.Command, inputPath, outputPath string) error {
	ctx := cmd.Context()

	if cfg.Metrics.ListenAddr != "" {
		go serveMetrics(cfg.Metrics.ListenAddr)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	reader, err := source.NewReader(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	recordSink, err := buildSink(cmd, out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := recordSink.Close(); cerr != nil {
			logger.Warn("failed to close sink", zap.Error(cerr))
		}
	}()

	sess, err := session.Open(session.Options{
		UserAgent:          cfg.Session.UserAgent,
		MaxIdleConns:       cfg.Session.MaxIdleConns,
		MaxConnsPerHost:    cfg.Session.MaxConnsPerHost,
		IdleConnTimeout:    cfg.IdleConnTimeout(),
		RequestTimeout:     cfg.RequestTimeout(),
		InsecureSkipVerify: cfg.Session.InsecureTLS,
		RequestsPerSecond:  cfg.Session.RequestsPerSecond,
		AverageWait:        cfg.Session.AverageWaitSeconds,
		BackoffBase:        cfg.Session.BackoffBase,
		MaxRetries:         cfg.Session.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	runner := pipeline.New(sess, recordSink, pipeline.Config{
		Concurrency: cfg.Pipeline.Concurrency,
	}, logger)

	counters, err := runner.Run(ctx, rows)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	if counters.Succeeded == 0 && len(rows) > 0 {
		return fmt.Errorf("no rows were harvested (%d failed)", counters.Failed)
	}
	return nil
}

func buildSink(cmd *cobra.Command, out *os.File) (harvest.RecordSink, error) {
	csvSink := sink.NewCSVSink(out)
	if cfg.DB.DSN == "" {
		return csvSink, nil
	}

	pgSink, err := sink.NewPostgresSink(cmd.Context(), sink.PostgresConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxOpenConns,
		MinConns: cfg.DB.MinOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres sink: %w", err)
	}
	return sink.Multi{csvSink, pgSink}, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}

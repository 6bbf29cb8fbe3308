package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/your-org/floodgate/internal/generator"
	"github.com/your-org/floodgate/internal/payload"
	"github.com/your-org/floodgate/pkg/config"
	"github.com/your-org/floodgate/pkg/logger"
	"github.com/your-org/floodgate/pkg/objectstore"
)

var rootCmd = &cobra.Command{
	Use:   "generator",
	Short: "Synthetic event load generator for the floodgate ingest service",
	Long: `Generate a controlled stream of events against an ingestion endpoint.

The aggregate rate is split evenly across the worker pool; each worker paces
itself with a bounded random jitter to avoid synchronized bursts.

Examples:
  generator --rate 200 --duration 30s --concurrency 8
  generator --payload '{"event_type":"purchase","amount":9.99}' --batch 10
  generator --payload events.tmpl --jitter-ms 100
  generator --payload s3://fixtures/checkout.json`,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.Flags()
	f.String("url", "http://localhost:8000/events", "ingest endpoint")
	f.Float64("rate", 50.0, "total requests per second across all workers")
	f.Duration("duration", 10*time.Second, "how long to run (0 = until interrupted)")
	f.Int("concurrency", 4, "number of workers")
	f.String("payload", "", "inline JSON, path to a .json/.tmpl file, or s3://bucket/key")
	f.Int("batch", 1, "events per request (array size)")
	f.Int("jitter-ms", 50, "random sleep jitter per request, in milliseconds")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
}

func run(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	rate, _ := cmd.Flags().GetFloat64("rate")
	duration, _ := cmd.Flags().GetDuration("duration")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	payloadSrc, _ := cmd.Flags().GetString("payload")
	batch, _ := cmd.Flags().GetInt("batch")
	jitterMs, _ := cmd.Flags().GetInt("jitter-ms")
	logLevel, _ := cmd.Flags().GetString("log-level")

	logr, err := logger.NewConsole(logLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providerParams := payload.Params{Source: payloadSrc}
	if strings.HasPrefix(payloadSrc, "s3://") {
		storageCfg, err := config.LoadStorage()
		if err != nil {
			return fmt.Errorf("load storage config: %w", err)
		}
		store, err := objectstore.New(objectstore.Config{
			Provider:  storageCfg.Provider,
			Endpoint:  storageCfg.Endpoint,
			Region:    storageCfg.Region,
			AccessKey: storageCfg.AccessKey,
			SecretKey: storageCfg.SecretKey,
			UseSSL:    storageCfg.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
		defer store.Close() //nolint:errcheck
		providerParams.Fetcher = store
	}

	dispatcher := generator.NewDispatcher(generator.DispatcherParams{
		Transport: generator.NewHTTPTransport(url, concurrency),
		Provider:  payload.NewProvider(providerParams),
		Logger:    logr,
		Options: generator.Options{
			Rate:        rate,
			Duration:    duration,
			Concurrency: concurrency,
			BatchSize:   batch,
			JitterBound: time.Duration(jitterMs) * time.Millisecond,
		},
	})

	report, err := dispatcher.Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printReport(r *generator.Report) {
	header := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	fmt.Println()
	header.Println("=== Run Report ===")
	fmt.Printf("Events sent:   %d\n", r.TotalSent)
	fmt.Printf("Requests:      %d\n", r.Requests)
	good.Printf("Accepted:      %d\n", r.Accepted)
	if r.Rejected > 0 {
		bad.Printf("Rejected:      %d (queue backpressure)\n", r.Rejected)
	}
	if r.Errors > 0 {
		bad.Printf("Send errors:   %d\n", r.Errors)
	}
	fmt.Printf("Elapsed:       %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Printf("Rate:          %.2f events/s\n", r.EffectiveRate())

	header.Println("=== Latency ===")
	fmt.Printf("P50:  %s\n", r.LatencyP50)
	fmt.Printf("P90:  %s\n", r.LatencyP90)
	fmt.Printf("P99:  %s\n", r.LatencyP99)
	fmt.Printf("Max:  %s\n", r.LatencyMax)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

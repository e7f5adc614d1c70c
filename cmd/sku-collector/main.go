// Command sku-collector fetches real-time pricing and inventory for a list of
// SKUs from the vendor portal and appends the results to a CSV price history.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/procurex/sku-collector/pkg/auth"
	"github.com/procurex/sku-collector/pkg/batch"
	"github.com/procurex/sku-collector/pkg/client"
	"github.com/procurex/sku-collector/pkg/config"
	"github.com/procurex/sku-collector/pkg/csvstore"
	"github.com/procurex/sku-collector/pkg/history"
	"github.com/procurex/sku-collector/pkg/logging"
	"github.com/procurex/sku-collector/pkg/model"
	"github.com/procurex/sku-collector/pkg/ratelimit"
	"github.com/procurex/sku-collector/pkg/vendor"
)

func main() {
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	skuFile := flag.String("skus", "", "path to SKU list file (overrides SKU_FILE)")
	output := flag.String("out", "", "path to output CSV (overrides OUTPUT_CSV)")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if *skuFile != "" {
		cfg.SKUFile = *skuFile
	}
	if *output != "" {
		cfg.OutputCSV = *output
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: *pretty,
		Output: os.Stderr,
	})

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger zerolog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requests, err := readSKUFile(cfg.SKUFile)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.SKUFile).Msg("Failed to read SKU list")
		return 1
	}
	if len(requests) == 0 {
		logger.Info().Str("path", cfg.SKUFile).Msg("SKU list is empty, nothing to do")
		return 0
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("Redis unavailable, continuing without shared token cache")
			redisClient = nil
		}
		defer func() {
			if redisClient != nil {
				redisClient.Close()
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	tokens, err := auth.NewTokenSource(auth.Config{
		TokenURL:   cfg.TokenURL(),
		ClientAuth: cfg.ClientAuth,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Scope:      cfg.Scope,
		Timeout:    cfg.HTTPTimeout,
	}, redisClient, logging.NewLogger("auth"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create token source")
		return 1
	}

	adapter, err := vendor.New(vendor.Config{
		BaseURL: cfg.VendorBaseURL,
		Timeout: cfg.HTTPTimeout,
	}, tokens, logging.NewLogger("vendor"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create vendor adapter")
		return 1
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MinInterval:   cfg.MinInterval,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create rate limiter")
		return 1
	}

	fetcher, err := client.New(adapter, limiter, client.RetryConfig{
		MaxAttempts:       cfg.MaxRetries,
		InitialBackoff:    cfg.BackoffBase,
		MaxBackoff:        cfg.BackoffMax,
		BackoffMultiplier: 2.0,
	}, logging.NewLogger("client"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create fetch client")
		return 1
	}

	orch, err := batch.New(fetcher, cfg.MaxConcurrent, logging.NewLogger("batch"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create orchestrator")
		return 1
	}

	store, err := csvstore.NewWriter(cfg.OutputCSV)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create output writer")
		return 1
	}

	dataset, err := store.Load()
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.OutputCSV).Msg("Failed to load existing price history")
		return 1
	}
	logger.Info().
		Int("skus", len(requests)).
		Int("history_records", dataset.Len()).
		Str("output", cfg.OutputCSV).
		Msg("Starting collection run")

	results, err := orch.Run(ctx, requests)
	if err != nil {
		logger.Error().Err(err).Msg("Batch run failed")
		return 1
	}

	summary := history.Merge(results, dataset)
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped_duplicate", summary.SkippedDuplicate).
		Msg("Merge completed")

	rows, err := store.Append(dataset)
	if err != nil {
		// Merged data survives only in memory at this point; surface enough
		// to recover by hand before exiting nonzero.
		logger.Error().Err(err).
			Int("unpersisted_records", summary.Succeeded).
			Str("path", cfg.OutputCSV).
			Msg("Failed to persist merged records")
		return 1
	}

	logger.Info().
		Int("rows_appended", rows).
		Int("total_records", dataset.Len()).
		Msg("Collection run completed")
	return 0
}

// readSKUFile parses a newline-delimited SKU list. Blank lines and lines
// starting with '#' are skipped; surrounding whitespace is trimmed.
func readSKUFile(path string) ([]model.SkuRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var requests []model.SkuRequest
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		requests = append(requests, model.SkuRequest{SKU: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return requests, nil
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("Metrics listener stopped")
	}
}

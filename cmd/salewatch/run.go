package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/devblac/salewatch/internal/config"
	"github.com/devblac/salewatch/internal/engine"
	"github.com/devblac/salewatch/internal/health"
	"github.com/devblac/salewatch/internal/logging"
	"github.com/devblac/salewatch/internal/metrics"
	"github.com/devblac/salewatch/internal/sink"
	"github.com/devblac/salewatch/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagOnce     bool
	flagDryRun   bool
	flagFrom     uint64
	flagTo       uint64
	flagHealth   string
	flagMetrics  string
	flagInterval time.Duration
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one batch per adapter and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Log sales instead of sending them to sinks")
	runCmd.Flags().Uint64Var(&flagFrom, "from", 0, "Start block override for adapters without a cursor")
	runCmd.Flags().Uint64Var(&flagTo, "to", 0, "Stop at block (inclusive) and exit once reached")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
	runCmd.Flags().DurationVar(&flagInterval, "interval", 5*time.Second, "Wait between polls once caught up")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Index sales until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = "info"
		}
		log := logging.NewWithLevel(logLevel)
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		svc, err := buildServices(ctx, cfg.Services, log)
		if err != nil {
			return fmt.Errorf("token services: %w", err)
		}
		defer svc.close()

		ads, err := buildAdapters(cfg, store, svc, log, flagFrom, flagTo)
		if err != nil {
			return err
		}
		defer ads.Close()

		sinks, err := sink.Build(cfg.Sinks, store, log)
		if err != nil {
			return err
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
		}

		if flagHealth != "" {
			extra := map[string]http.Handler{}
			if flagMetrics == flagHealth {
				extra["/metrics"] = metrics.Handler()
			}
			rpcChecker := health.NewRPCChecker(ads.headers)
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: rpcChecker.Ping,
				Cursors: cursorHeights(store),
			}, extra)
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagMetrics != "" && flagMetrics != flagHealth {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}

		runner, err := engine.NewRunner(ads.pipelines, sinks, mtr, log, flagDryRun)
		if err != nil {
			return err
		}

		log.Info("salewatch started", "adapters", len(ads.pipelines), "dry_run", flagDryRun)
		for {
			scanned, err := runner.RunOnce(ctx)
			if err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					break
				}
				log.Error("run error", "error", err)
				if flagOnce {
					return err
				}
			}
			if flagOnce {
				break
			}
			if scanned > 0 {
				log.Debug("tick complete", "blocks", scanned)
				continue
			}
			if flagTo > 0 && runner.Done() {
				log.Info("reached target block", "to", flagTo)
				break
			}
			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			case <-time.After(flagInterval):
			}
		}
		return nil
	},
}

func cursorHeights(store *storage.Store) func(context.Context) (map[string]uint64, error) {
	return func(ctx context.Context) (map[string]uint64, error) {
		cursors, err := store.ListCursors(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]uint64, len(cursors))
		for _, c := range cursors {
			out[c.AdapterID] = c.Height
		}
		return out, nil
	}
}

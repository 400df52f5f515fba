package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/satnet-worm-sim/config"
	"github.com/signalsfoundry/satnet-worm-sim/core"
	"github.com/signalsfoundry/satnet-worm-sim/internal/logging"
	"github.com/signalsfoundry/satnet-worm-sim/internal/observability"
	"github.com/signalsfoundry/satnet-worm-sim/internal/sink"
)

var (
	runConfigPath  string
	runSchemaPath  string
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a Monte Carlo propagation sweep",
	Long:  "run executes the configured number of worm-propagation trials and writes JSONL results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.NewFromEnv()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
		if err != nil {
			return err
		}
		defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

		collector, err := observability.NewSimCollector(nil)
		if err != nil {
			return err
		}
		if runMetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", collector.Handler())
				if err := http.ListenAndServe(runMetricsAddr, mux); err != nil && err != http.ErrServerClosed {
					log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
				}
			}()
			log.Info(ctx, "metrics endpoint listening", logging.String("addr", runMetricsAddr))
		}

		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		provider, err := cfg.Provider()
		if err != nil {
			return err
		}
		stations := cfg.Stations()
		base := cfg.TrialParams()

		var shared []*core.TopologySnapshot
		if cfg.Run.ShareSnapshots {
			builder, err := core.NewTopologyBuilder(base.Build)
			if err != nil {
				return err
			}
			tl, err := core.NewTopologyTimeline(provider, builder, base.Classify, base.Start, base.Step, log)
			if err != nil {
				return err
			}
			shared, err = core.PrebuildSnapshots(ctx, tl, base.Horizon)
			if err != nil {
				return err
			}
			log.Info(ctx, "prebuilt shared snapshot sequence", logging.Int("snapshots", len(shared)))
		}

		factory := func(seed int64) (*core.Trial, error) {
			params := base
			params.Seed = seed
			trial, err := core.NewTrial(params, provider, stations, log)
			if err != nil {
				return nil, err
			}
			if shared != nil {
				if err := trial.UseSharedSnapshots(shared); err != nil {
					return nil, err
				}
			}
			return trial, nil
		}

		results, runErr := core.RunTrials(ctx, cfg.Run.Trials, cfg.Run.BaseSeed, factory)
		recordSweep(collector, results, cfg.Run.Trials, errors.Is(runErr, context.Canceled))

		writer, err := sink.NewFileWriter(cfg.Output.CurvePath, cfg.Output.TopologyPath, cfg.Output.EventPath)
		if err != nil {
			return err
		}
		defer writer.Close()
		for _, r := range results {
			if err := writer.WriteTrial(r); err != nil {
				return err
			}
		}

		if mean, ok := core.MeanFinalCompromised(results); ok {
			log.Info(ctx, "sweep finished",
				logging.Int("trials_completed", len(results)),
				logging.Float64("mean_final_compromised", mean),
			)
		}
		return runErr
	},
}

// recordSweep folds completed trial results into the Prometheus
// collector. Trials missing from a cancelled sweep count as cancelled,
// otherwise as failed.
func recordSweep(c *observability.SimCollector, results []*core.TrialResult, requested int, cancelled bool) {
	for _, r := range results {
		c.TrialsCompleted.Inc()
		c.TrialDuration.Observe(r.Elapsed.Seconds())
		for reason, n := range r.Routing.Dropped {
			c.PacketsDropped.WithLabelValues(string(reason)).Add(float64(n))
		}
		for _, e := range r.EpidemicEvents {
			if e.Transition == "S->I" {
				c.Infections.Inc()
			}
		}
		for _, e := range r.DefenseEvents {
			switch e.Type {
			case core.DefensePatch:
				c.Patches.Inc()
			case core.DefenseDetection:
				c.Detections.Inc()
			}
		}
		for _, m := range r.Snapshots {
			if m.ChurnDefined {
				c.ChurnRate.Observe(m.ChurnRate)
			}
		}
	}
	for i := len(results); i < requested; i++ {
		if cancelled {
			c.TrialsCancelled.Inc()
		} else {
			c.TrialsFailed.Inc()
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "config/schema.cue", "Path to CUE schema file")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
}

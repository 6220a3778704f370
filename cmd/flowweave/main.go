package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowweave/flowweave/config"
	"github.com/flowweave/flowweave/internal/bridge"
	"github.com/flowweave/flowweave/internal/cache"
	"github.com/flowweave/flowweave/internal/llm"
	"github.com/flowweave/flowweave/internal/planner"
	"github.com/flowweave/flowweave/internal/registry"
	"github.com/flowweave/flowweave/internal/telemetry"
)

func main() {
	var root = &cobra.Command{Use: "flowweave"}

	var cfgPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	var snapshotPath string
	var intent string
	var preselect []string
	var noCache bool
	var plan = &cobra.Command{
		Use:   "plan",
		Short: "Run one planning turn against a registry snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if intent == "" {
				return fmt.Errorf("--intent is required")
			}
			cfg := config.LoadConfig(cfgPath)
			ctx := cmd.Context()

			reg, err := loadRegistry(ctx, cfg, snapshotPath)
			if err != nil {
				return err
			}

			provider, err := llm.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}

			var planCache cache.Cache
			if !noCache {
				client, err := cache.Conn(ctx, cfg.Cache)
				if err != nil {
					return fmt.Errorf("plan cache: %w", err)
				}
				defer client.Close()
				planCache = cache.NewRedisCache(client)
			}

			metrics := telemetry.New()
			if cfg.Telemetry.Enabled {
				go func() {
					if err := metrics.Serve(cfg.Telemetry.MetricsPort); err != nil {
						fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
					}
				}()
			}

			p := planner.New(cfg, provider, planCache, reg, metrics)
			result, err := p.PlanTurn(ctx, planner.Request{
				Intent:      intent,
				Preselected: preselect,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	plan.Flags().StringVar(&snapshotPath, "snapshot", "", "registry snapshot JSON file (defaults to postgres registry)")
	plan.Flags().StringVar(&intent, "intent", "", "natural-language workflow intent")
	plan.Flags().StringSliceVar(&preselect, "preselect", nil, "node ids to narrow planning to")
	plan.Flags().BoolVar(&noCache, "no-cache", false, "skip the plan cache")

	var planFile string
	var validate = &cobra.Command{
		Use:   "validate",
		Short: "Validate a saved plan and emit its executable form",
		RunE: func(cmd *cobra.Command, args []string) error {
			if planFile == "" {
				return fmt.Errorf("--plan is required")
			}
			cfg := config.LoadConfig(cfgPath)
			ctx := cmd.Context()

			reg, err := loadRegistry(ctx, cfg, snapshotPath)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(planFile)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}
			var steps []planner.PlanStep
			if err := json.Unmarshal(data, &steps); err != nil {
				return fmt.Errorf("parse plan: %w", err)
			}

			validator := bridge.NewValidator(reg, telemetry.New())
			executable, summary, err := validator.Build(ctx, steps)
			if err != nil {
				fmt.Fprintf(os.Stderr, "plan rejected (%d error(s)): %v\n", summary.Errors, err)
				os.Exit(1)
			}
			return printJSON(executable)
		},
	}
	validate.Flags().StringVar(&planFile, "plan", "", "plan steps JSON file")
	validate.Flags().StringVar(&snapshotPath, "snapshot", "", "registry snapshot JSON file (defaults to postgres registry)")

	root.AddCommand(plan, validate)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadRegistry(ctx context.Context, cfg *config.Config, snapshotPath string) (registry.Registry, error) {
	if snapshotPath == "" {
		snapshotPath = cfg.Registry.Snapshot
	}
	if snapshotPath != "" {
		return registry.LoadSnapshotFile(snapshotPath)
	}
	return registry.NewPostgresRegistry(cfg.Registry.Postgres)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

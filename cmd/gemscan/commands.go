package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/gemscan/gemscan/internal/interfaces/http"
)

func newFetchCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "fetch [addresses...]",
		Short: "Fetch token data for a list of addresses",
		Long: `Fetch runs the batch pipeline for the given token addresses: validation,
cache lookup, strategy selection, and the actual provider calls. Results are
printed as JSON keyed by address.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			scanID := newScanID()
			var result interface{}
			switch kind {
			case "metadata":
				result = a.manager.FetchMetadata(ctx, args, scanID)
			case "price":
				result = a.manager.FetchPrices(ctx, args, scanID)
			case "overview":
				result = a.manager.FetchOverviews(ctx, args, scanID)
			case "security":
				result = a.manager.FetchSecurity(ctx, args, scanID)
			default:
				return fmt.Errorf("unknown kind %q (metadata|price|overview|security)", kind)
			}

			stats := a.manager.PerformanceStats()
			log.Info().
				Int64("api_calls_made", stats.APICallsMade).
				Int64("api_calls_saved", stats.APICallsSaved).
				Float64("saved_ratio", stats.SavedRatio).
				Msg("Fetch completed")

			return printJSON(result)
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "metadata", "data kind: metadata|price|overview|security")
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run discovery strategies once",
		Long: `Discover runs every registered discovery strategy, merges their candidates
by address, and prints the enriched result. Without --force the run is
subject to the hourly schedule and at-most-once-per-slot guard.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			scanID := newScanID()
			var candidates interface{}
			if force {
				candidates = a.scheduler.RunNow(ctx, scanID)
			} else {
				candidates = a.scheduler.RunDueShared(ctx, scanID)
			}
			return printJSON(candidates)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "run even if the hour slot is not due")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler loop and the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := httpapi.NewServer(httpapi.Config{
				Addr:         a.cfg.HTTP.Addr,
				ReadTimeout:  a.cfg.HTTP.ReadTimeout,
				WriteTimeout: a.cfg.HTTP.WriteTimeout,
			}, httpapi.Deps{
				ProviderName: a.provider.Name(),
				Manager:      a.manager,
				Store:        a.store,
				Scheduler:    a.scheduler,
				Registry:     a.registry,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			go a.stream.Run(ctx)

			if a.cfg.Scheduler.Enabled {
				go a.scheduler.Start(ctx, newScanID)
			} else {
				log.Info().Msg("Scheduler disabled, serving ops endpoints only")
			}

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
}

func newCleanCmd() *cobra.Command {
	var maxAgeDays int

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Prune old execution history and strategy tracking data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			return a.scheduler.CleanExpired(time.Duration(maxAgeDays) * 24 * time.Hour)
		},
	}

	cmd.Flags().IntVar(&maxAgeDays, "max-age", 7, "drop records older than this many days")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print batch pipeline and cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			out := map[string]interface{}{
				"batch":      a.manager.PerformanceStats(),
				"validation": a.manager.Validator().Stats(),
				"cache":      a.store.Stats(),
				"throttle":   a.manager.ThrottleSnapshot(),
			}
			return printJSON(out)
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/workout-music-tools/internal/metrics"
	"github.com/ademuri/workout-music-tools/internal/pipeline"
	"github.com/ademuri/workout-music-tools/internal/quality"
)

type EnrichConfig struct {
	Interval time.Duration
	Limit    int
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetches genres, popularity and labels for artists and albums",
	Long: `Looks up artists and albums that have never been enriched, or were last
enriched longer ago than --enrich_interval, in batches.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval := viper.GetDuration("enrich_interval")
		if interval <= 0 {
			fmt.Printf("Invalid enrich_interval %q. Using default 30 days.\n", viper.GetString("enrich_interval"))
			interval = 30 * 24 * time.Hour
		}

		config := EnrichConfig{
			Interval: interval,
			Limit:    viper.GetInt("enrich_limit"),
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := enrich(ctx, config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().Duration("enrich_interval", 30*24*time.Hour, "Time after which to re-fetch artist and album details (e.g., 720h)")
	viper.BindPFlag("enrich_interval", enrichCmd.Flags().Lookup("enrich_interval"))

	enrichCmd.Flags().Int("enrich_limit", 0, "Maximum artists and albums to look up (0 for all)")
	viper.BindPFlag("enrich_limit", enrichCmd.Flags().Lookup("enrich_limit"))
}

func enrich(ctx context.Context, config EnrichConfig) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	metrics.Serve(ctx, viper.GetString("metrics_addr"))

	runID := uuid.NewString()
	client, err := newSpotifyClient(pipeline.NewCallLog(st, runID))
	if err != nil {
		return err
	}

	enricher := pipeline.NewEnricher(client, st, quality.NewLedger(st, runID), config.Interval, config.Limit)
	sum, err := enricher.Run(ctx)
	fmt.Printf("Enriched %d artists and %d albums (%d unknown, %d failed batches)\n",
		sum.Artists, sum.Albums, sum.Unknown, sum.FailedBatches)
	if err != nil {
		return err
	}
	return nil
}

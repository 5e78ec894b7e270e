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
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/workout-music-tools/internal/metrics"
	"github.com/ademuri/workout-music-tools/internal/pipeline"
	"github.com/ademuri/workout-music-tools/internal/quality"
)

type CollectConfig struct {
	MaxPlaylists int
	SearchLimit  int
	PageLimit    int
	Quiet        bool
	Notify       string
	MetricsAddr  string
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collects today's snapshot of workout playlists",
	Long: `Searches every configured category query, fetches each distinct playlist
and loads its tracks as today's snapshot. Playlists that fail to fetch are
logged and skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		config := CollectConfig{
			MaxPlaylists: viper.GetInt("max_playlists"),
			SearchLimit:  viper.GetInt("search_limit"),
			PageLimit:    viper.GetInt("page_limit"),
			Quiet:        viper.GetBool("quiet"),
			Notify:       viper.GetString("notify"),
			MetricsAddr:  viper.GetString("metrics_addr"),
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := collect(ctx, config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().Int("max_playlists", 200, "Maximum distinct playlists per run (0 for no cap)")
	viper.BindPFlag("max_playlists", collectCmd.Flags().Lookup("max_playlists"))

	collectCmd.Flags().Int("search_limit", 50, "Playlists requested per search query")
	viper.BindPFlag("search_limit", collectCmd.Flags().Lookup("search_limit"))

	collectCmd.Flags().Int("page_limit", 100, "Items requested per playlist page")
	viper.BindPFlag("page_limit", collectCmd.Flags().Lookup("page_limit"))

	collectCmd.Flags().BoolP("quiet", "q", false, "Don't show a progress bar")
	viper.BindPFlag("quiet", collectCmd.Flags().Lookup("quiet"))

	collectCmd.Flags().String("notify", "", "Email the run summary to this address")
	viper.BindPFlag("notify", collectCmd.Flags().Lookup("notify"))
}

func collect(ctx context.Context, config CollectConfig) error {
	if config.Notify != "" && (viper.GetString("sendgrid_api_key") == "" || viper.GetString("from") == "") {
		return fmt.Errorf("sendgrid_api_key and from must be set in order to use --notify")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	metrics.Serve(ctx, config.MetricsAddr)

	runID := uuid.NewString()
	client, err := newSpotifyClient(pipeline.NewCallLog(st, runID))
	if err != nil {
		return err
	}

	pcfg := pipeline.Config{
		Categories:   categories(),
		MaxPlaylists: config.MaxPlaylists,
		SearchLimit:  config.SearchLimit,
		PageLimit:    config.PageLimit,
	}
	if !config.Quiet {
		pcfg.Progress = os.Stderr
	}

	collector := pipeline.NewCollector(client, st, quality.NewLedger(st, runID), pcfg)
	sum, runErr := collector.Run(ctx)
	printRunSummary(os.Stdout, sum)

	if config.Notify != "" {
		if err := notifySummary(config.Notify, sum); err != nil {
			fmt.Println(err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("collecting: %w", runErr)
	}
	return nil
}

func printRunSummary(out io.Writer, sum pipeline.RunSummary) {
	fmt.Fprintf(out, "Run %s: %s\n", sum.RunID, sum.Status())

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Measure", "Value"})
	table.Append([]string{"Playlists discovered", strconv.Itoa(sum.Discovered)})
	table.Append([]string{"Playlists loaded", strconv.Itoa(sum.Playlists)})
	table.Append([]string{"Playlists failed", strconv.Itoa(len(sum.Failed))})
	table.Append([]string{"Entries", strconv.Itoa(sum.Entries)})
	table.Append([]string{"New tracks", strconv.Itoa(sum.TracksInserted)})
	table.Append([]string{"Removals", strconv.Itoa(sum.Removed)})
	table.Append([]string{"Quality issues", strconv.Itoa(sum.IssueTotal)})
	table.Append([]string{"Duration", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second).String()})
	table.Render()

	if len(sum.Issues) > 0 {
		issues := tablewriter.NewWriter(out)
		issues.Header([]string{"Issue", "Severity", "Count"})
		for _, c := range sum.Issues {
			issues.Append([]string{string(c.Type), string(c.Severity), strconv.Itoa(c.N)})
		}
		issues.Render()
	}

	for _, f := range sum.Failed {
		fmt.Fprintf(out, "failed: %v\n", f)
	}
	if sum.Interrupted {
		fmt.Fprintln(out, "Run was interrupted before every playlist was collected")
	}
}

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
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/workout-music-tools/internal/store"
)

type QualityConfig struct {
	RunID    string
	Severity string
	Limit    int
}

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Shows data quality issues and recent runs",
	Long: `Prints recent collection runs, issue counts by type and severity, and the
newest issues. --run limits the counts to one run.`,
	Run: func(cmd *cobra.Command, args []string) {
		config := QualityConfig{
			RunID:    viper.GetString("run"),
			Severity: viper.GetString("severity"),
			Limit:    viper.GetInt("limit"),
		}
		if err := showQuality(context.Background(), os.Stdout, config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(qualityCmd)

	qualityCmd.Flags().String("run", "", "Only count issues from this run id")
	viper.BindPFlag("run", qualityCmd.Flags().Lookup("run"))

	qualityCmd.Flags().String("severity", "", "Only list issues of this severity (low, medium, high)")
	viper.BindPFlag("severity", qualityCmd.Flags().Lookup("severity"))

	qualityCmd.Flags().IntP("limit", "l", 20, "Number of issues and runs to list")
	viper.BindPFlag("limit", qualityCmd.Flags().Lookup("limit"))
}

func showQuality(ctx context.Context, out io.Writer, config QualityConfig) error {
	switch config.Severity {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("--severity must be low, medium or high, got %q", config.Severity)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.RecentRuns(ctx, config.Limit)
	if err != nil {
		return err
	}
	counts, err := st.IssueCounts(ctx, config.RunID)
	if err != nil {
		return err
	}
	issues, err := st.RecentIssues(ctx, config.Severity, config.Limit)
	if err != nil {
		return err
	}

	printRuns(out, runs)
	printIssueCounts(out, counts)
	printIssues(out, issues)
	return nil
}

func printRuns(out io.Writer, runs []store.RunRow) {
	fmt.Fprintln(out, "### Runs")
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Run", "Started", "Status", "Playlists", "Failed", "Entries", "Issues"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.StartedAt,
			r.Status,
			strconv.FormatInt(r.Playlists, 10),
			strconv.FormatInt(r.PlaylistsFailed, 10),
			strconv.FormatInt(r.Entries, 10),
			strconv.FormatInt(r.Issues, 10),
		})
	}
	table.Render()
}

func printIssueCounts(out io.Writer, counts []store.IssueCount) {
	fmt.Fprintln(out, "\n### Issue counts")
	if len(counts) == 0 {
		fmt.Fprintln(out, "No issues found.")
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Issue", "Severity", "Count"})
	for _, c := range counts {
		table.Append([]string{c.IssueType, c.Severity, strconv.FormatInt(c.Count, 10)})
	}
	table.Render()
}

func printIssues(out io.Writer, issues []store.IssueRow) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintln(out, "\n### Recent issues")
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Detected", "Record", "Id", "Issue", "Severity", "Description"})
	for _, is := range issues {
		table.Append([]string{is.DetectedAt, is.RecordType, is.RecordID, is.IssueType, is.Severity, is.Description})
	}
	table.Render()
}

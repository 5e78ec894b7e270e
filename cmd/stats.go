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
	"gopkg.in/yaml.v3"

	"github.com/ademuri/workout-music-tools/internal/store"
)

// StatsReport is what the stats command prints.
type StatsReport struct {
	Summary    store.Summary               `yaml:"summary"`
	Categories []store.CategoryCount       `yaml:"categories"`
	TopTracks  []store.TrackPlaylistCount  `yaml:"top_tracks"`
	TopArtists []store.ArtistPlaylistCount `yaml:"top_artists"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints counts over the collected data",
	Long:  `Shows table counts, a per-category breakdown and the tracks and artists found on the most playlists.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runStats(context.Background(), os.Stdout, viper.GetString("category"), viper.GetInt("top"), viper.GetString("format"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating stats: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("category", "", "Limit top tracks and artists to this category")
	viper.BindPFlag("category", statsCmd.Flags().Lookup("category"))

	statsCmd.Flags().IntP("top", "n", 10, "Number of top tracks and artists to show")
	viper.BindPFlag("top", statsCmd.Flags().Lookup("top"))

	statsCmd.Flags().StringP("format", "f", "table", "table or yaml")
	viper.BindPFlag("format", statsCmd.Flags().Lookup("format"))
}

func runStats(ctx context.Context, out io.Writer, category string, top int, format string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := gatherStats(ctx, st, category, top)
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("encoding stats: %w", err)
		}
		return encoder.Close()
	case "table", "":
		printStats(out, report)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func gatherStats(ctx context.Context, st *store.Store, category string, top int) (StatsReport, error) {
	var report StatsReport
	var err error

	if report.Summary, err = st.Summary(ctx); err != nil {
		return report, err
	}
	if report.Categories, err = st.CategoryBreakdown(ctx); err != nil {
		return report, err
	}
	if report.TopTracks, err = st.TopTracks(ctx, category, top); err != nil {
		return report, err
	}
	if report.TopArtists, err = st.TopArtists(ctx, category, top); err != nil {
		return report, err
	}
	return report, nil
}

func printStats(out io.Writer, r StatsReport) {
	s := r.Summary
	fmt.Fprintf(out, "Latest snapshot: %s\n", s.LatestSnapshot)

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Table", "Rows"})
	for _, row := range []struct {
		name string
		n    int64
	}{
		{"playlists", s.Playlists},
		{"playlist snapshots", s.PlaylistSnapshots},
		{"tracks", s.Tracks},
		{"artists", s.Artists},
		{"artists enriched", s.ArtistsEnriched},
		{"albums", s.Albums},
		{"albums enriched", s.AlbumsEnriched},
		{"playlist tracks", s.Associations},
		{"removals", s.Removals},
		{"quality issues", s.Issues},
		{"api calls", s.APICalls},
		{"runs", s.Runs},
	} {
		table.Append([]string{row.name, strconv.FormatInt(row.n, 10)})
	}
	table.Render()

	if len(r.Categories) > 0 {
		fmt.Fprintln(out, "\n### Categories")
		cats := tablewriter.NewWriter(out)
		cats.Header([]string{"Category", "Playlists", "Tracks"})
		for _, c := range r.Categories {
			cats.Append([]string{c.Category, strconv.FormatInt(c.Playlists, 10), strconv.FormatInt(c.Tracks, 10)})
		}
		cats.Render()
	}

	if len(r.TopTracks) > 0 {
		fmt.Fprintln(out, "\n### Top tracks")
		tracks := tablewriter.NewWriter(out)
		tracks.Header([]string{"Track", "Artist", "Playlists"})
		for _, t := range r.TopTracks {
			tracks.Append([]string{t.Name, t.Artist, strconv.FormatInt(t.Playlists, 10)})
		}
		tracks.Render()
	}

	if len(r.TopArtists) > 0 {
		fmt.Fprintln(out, "\n### Top artists")
		artists := tablewriter.NewWriter(out)
		artists.Header([]string{"Artist", "Playlists"})
		for _, a := range r.TopArtists {
			artists.Append([]string{a.Name, strconv.FormatInt(a.Playlists, 10)})
		}
		artists.Render()
	}
}

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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var checkConnectionCmd = &cobra.Command{
	Use:   "check-connection",
	Short: "Verifies Spotify credentials and API access",
	Long:  `Authenticates, runs one playlist search and fetches one page of the first playlist found.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := checkConnection(context.Background(), viper.GetString("query")); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkConnectionCmd)

	checkConnectionCmd.Flags().String("query", "workout", "Search query to try")
	viper.BindPFlag("query", checkConnectionCmd.Flags().Lookup("query"))
}

func checkConnection(ctx context.Context, query string) error {
	client, err := newSpotifyClient(nil)
	if err != nil {
		return err
	}

	var playlistID, playlistName string
	for entry, err := range client.SearchPlaylists(ctx, query, 1, 1, nil) {
		if err != nil {
			return fmt.Errorf("searching %q: %w", query, err)
		}
		playlistID, playlistName = entry.Item.ID, entry.Item.Name
	}
	if playlistID == "" {
		return fmt.Errorf("search for %q returned no playlists", query)
	}
	fmt.Printf("Search OK: found playlist %q (%s)\n", playlistName, playlistID)

	tracks := 0
	for entry, err := range client.PlaylistItems(ctx, playlistID, 5, nil) {
		if err != nil {
			return fmt.Errorf("fetching tracks of %s: %w", playlistID, err)
		}
		if tracks == 0 {
			fmt.Printf("Tracks OK: first track %q\n", entry.Item.Track.Name)
		}
		tracks++
		if tracks >= 5 {
			break
		}
	}
	if tracks == 0 {
		fmt.Println("Tracks OK: playlist is empty")
	}
	return nil
}

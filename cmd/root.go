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
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/ademuri/workout-music-tools/internal/logging"
	"github.com/ademuri/workout-music-tools/internal/spotify"
	"github.com/ademuri/workout-music-tools/internal/store"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "workout-music-tools",
	Short: "Collects workout playlists from Spotify",
	Long: `Searches Spotify for workout playlists, normalizes their tracks and
stores daily snapshots in a local SQLite or DuckDB database.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.workout-music-tools.yaml)")

	flags.String("client_id", "", "Spotify client id (or SPOTIFY_CLIENT_ID)")
	flags.String("client_secret", "", "Spotify client secret (or SPOTIFY_CLIENT_SECRET)")
	flags.StringP("database", "d", "./workout.db", "Path to the database file")
	flags.String("driver", store.DriverSQLite, "Database driver: sqlite3 or duckdb")

	flags.Duration("rate_limit_delay", spotify.DefaultDelay, "Minimum gap between the starts of two API calls")
	flags.Int("max_retries", 5, "Attempts per API call, including the first")
	flags.Duration("retry_delay", time.Second, "Base backoff between attempts")
	flags.Duration("max_retry_delay", 30*time.Second, "Upper bound on a single backoff")
	flags.Duration("request_timeout", 30*time.Second, "Timeout for a single HTTP request")

	flags.String("log_level", "info", "debug, info, warn or error")
	flags.String("log_format", "console", "console or json")
	flags.String("metrics_addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	flags.String("sendgrid_api_key", "", "SendGrid API key for --notify")
	flags.String("from", "", "From email address for --notify")

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name != "config" {
			viper.BindPFlag(f.Name, f)
		}
	})
	viper.BindEnv("client_id", "SPOTIFY_CLIENT_ID")
	viper.BindEnv("client_secret", "SPOTIFY_CLIENT_SECRET")
	viper.BindEnv("sendgrid_api_key", "SENDGRID_API_KEY")
}

// initConfig reads in the .env file, config file and ENV variables if set.
func initConfig() {
	// A missing .env is fine.
	godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".workout-music-tools" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".workout-music-tools")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	logging.Init(logging.Config{
		Level:  viper.GetString("log_level"),
		Format: viper.GetString("log_format"),
	})
}

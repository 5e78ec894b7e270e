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

	"github.com/spf13/viper"

	"github.com/ademuri/workout-music-tools/internal/pipeline"
	"github.com/ademuri/workout-music-tools/internal/spotify"
	"github.com/ademuri/workout-music-tools/internal/store"
)

func openStore() (*store.Store, error) {
	st, err := store.New(viper.GetString("driver"), viper.GetString("database"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

func clientConfig() spotify.Config {
	cfg := spotify.DefaultConfig()
	cfg.MaxAttempts = viper.GetInt("max_retries")
	cfg.RetryDelay = viper.GetDuration("retry_delay")
	cfg.MaxRetryDelay = viper.GetDuration("max_retry_delay")
	cfg.Timeout = viper.GetDuration("request_timeout")
	return cfg
}

// newSpotifyClient authenticates with client credentials from the config.
// recorder may be nil.
func newSpotifyClient(recorder spotify.CallRecorder) (*spotify.Client, error) {
	id, secret := viper.GetString("client_id"), viper.GetString("client_secret")
	if id == "" || secret == "" {
		return nil, fmt.Errorf("client_id and client_secret must be set (flags, config file or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET)")
	}
	pacer := spotify.NewPacer(viper.GetDuration("rate_limit_delay"), nil)
	return spotify.NewClient(clientConfig(), pacer, spotify.NewClientCredentials(id, secret), recorder), nil
}

// categories reads the category -> queries map from the config, falling back
// to the built-in workout categories.
func categories() []pipeline.Category {
	m := viper.GetStringMapStringSlice("categories")
	if len(m) == 0 {
		return pipeline.DefaultCategories()
	}
	return pipeline.CategoriesFromMap(m)
}

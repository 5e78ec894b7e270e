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

	"github.com/ademuri/workout-music-tools/internal/store"
)

var initDbCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Creates the database tables",
	Long:  `Creates the database file and every table if they don't exist yet. Existing data is left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := initDb(context.Background()); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(initDbCmd)
}

func initDb(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	fmt.Printf("Initialized %s database at %s with tables: %v\n", st.Driver(), viper.GetString("database"), store.Tables)
	return nil
}

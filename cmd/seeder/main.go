// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/unclebandit/broadcast-dispatcher/internal/config"
	"github.com/unclebandit/broadcast-dispatcher/internal/db"
	"github.com/unclebandit/broadcast-dispatcher/internal/logging"
)

func main() {
	var configFile, dir string

	cmd := &cobra.Command{
		Use:          "seeder",
		Short:        "Load demo campaigns from seed/*.sql",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return seed(cmd.Context(), cfg, dir)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&dir, "dir", "seed", "directory holding the seed files")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "seeder:", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg config.Config, dir string) error {
	log := logging.New(cfg.Log)

	conn, err := db.Open(ctx, cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no seed files in %s", dir)
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
		log.Info().Str("file", file).Msg("seeded")
	}

	log.Info().Int("files", len(files)).Msg("database seeding completed")
	return nil
}

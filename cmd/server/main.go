package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/annel0/overlay-sync/internal/config"
	"github.com/annel0/overlay-sync/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "overlay-server",
		Short:        "Per-viewer overlay host: selection markers and block previews",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("overlay-server %s\ncommit: %s\n", version, commit))
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (env OVERLAY_CONFIG)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newConfigCmd(opts))
	return root
}

// newConfigCmd печатает итоговую конфигурацию (файл поверх значений по умолчанию)
func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

// loadConfig читает конфигурацию и настраивает логирование.
// Без пути к файлу используются значения по умолчанию.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	switch {
	case errors.Is(err, config.ErrNoConfig):
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if opts.verbose {
		level = logging.DEBUG
	}
	logging.SetLogDir(cfg.Logging.Dir)
	logging.SetBaseLevel(level)
	logging.GetLoggerManager().SetAllLevels(level, logging.DEBUG)
	return cfg, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/najoast/frametree/bootstrap"
	"github.com/najoast/frametree/config"
)

var (
	serveConfig string
	serveScript string
	serveAddr   string
	serveIngest string
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Configuration file (YAML, JSON or TOML); searched for when empty")
	serveCmd.Flags().StringVar(&serveScript, "script", "", "Event script replayed on startup")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Monitor listen address")
	serveCmd.Flags().StringVar(&serveIngest, "ingest", "", "Accept JSON lifecycle events on this TCP address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the notifier and monitor until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewLoader().Load(serveConfig)
		if err != nil {
			return err
		}
		if buildVersion != "dev" {
			cfg.App.Version = buildVersion
		}
		if serveScript != "" {
			cfg.Notifier.Script = serveScript
		}
		if serveAddr != "" {
			cfg.Monitor.Address = serveAddr
			cfg.Monitor.Enabled = true
		}
		if serveIngest != "" {
			cfg.Ingest.Address = serveIngest
			cfg.Ingest.Enabled = true
		}

		var opts []bootstrap.AppOption
		if serveConfig != "" {
			opts = append(opts, bootstrap.WithConfigFile(serveConfig))
		}

		app, err := bootstrap.NewApplication(cfg, opts...)
		if err != nil {
			return fmt.Errorf("building application: %w", err)
		}
		return app.Run(cmd.Context())
	},
}

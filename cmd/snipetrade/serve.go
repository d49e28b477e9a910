package main

import (
	"github.com/spf13/cobra"

	"github.com/snipetrade/snipetrade/internal/ops"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops endpoints without scanning",
		Long: `Serve exposes /health, /metrics, /telemetry and /ws/status on their
own, for probing a deployment before any scan or trade runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.Ops.Listen
			}
			return ops.NewServer(listen, ops.Deps{}, logger).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :8089)")

	return cmd
}

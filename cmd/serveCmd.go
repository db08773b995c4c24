package cmd

import (
	"context"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control API",
	Long:  `Serve the REST and websocket API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}

		m, err := newManager()
		if err != nil {
			return err
		}
		// before shutting down, clear up the resources
		defer m.Destroy()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = m.Server().ListenAndServe(ctx, cfg.Server.Listen)
		log.Info("Exiting...")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address, overrides the configuration")
}

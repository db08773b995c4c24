package cmd

import (
	"github.com/spf13/cobra"

	"emuctl/pkg"
	"emuctl/pkg/config"
	"emuctl/pkg/logging"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "emuctl",
	Short: "Emulator control plane",
	Long:  "Control plane for a running network emulation: inspect nodes and links, shape links and capture traffic.",

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("docker-host") {
			c.Docker.Host, _ = cmd.Flags().GetString("docker-host")
		}
		if cmd.Flags().Changed("log-level") {
			c.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if err := logging.Setup(c.Log.Level, c.Log.Format, cmd.ErrOrStderr()); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func newManager() (*pkg.Manager, error) {
	return pkg.NewManager(cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().String("docker-host", "", "Container engine endpoint, overrides the configuration")
	rootCmd.PersistentFlags().String("log-level", "", "Log level, overrides the configuration")
}

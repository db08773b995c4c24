package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"emuctl/pkg/link"
)

var tcCmd = &cobra.Command{
	Use:   "tc",
	Short: "Inspect and shape emulated links",
}

var tcGetCmd = &cobra.Command{
	Use:   "get <network-id>",
	Short: "Show the impairment of a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		defer m.Destroy()

		p, err := m.GetProfile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var tcSetCmd = &cobra.Command{
	Use:   "set <network-id>",
	Short: "Change the impairment of a network on every member node",
	Long:  `Change the impairment of a network on every member node. A value of -1 leaves the field out.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req link.ShapeRequest
		for flag, dst := range map[string]**link.WireValue{
			"bw":      &req.Bw,
			"latency": &req.Latency,
			"loss":    &req.Loss,
			"queue":   &req.Queue,
		} {
			v, _ := cmd.Flags().GetString(flag)
			w := link.WireValue(v)
			*dst = &w
		}

		m, err := newManager()
		if err != nil {
			return err
		}
		defer m.Destroy()

		results, changed, err := m.SetProfile(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !changed {
			fmt.Fprintln(out, "no change")
			return nil
		}
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(out, "Node: %s, Error: %s\n", shortID(r.Node), r.Error)
				continue
			}
			fmt.Fprintf(out, "Node: %s, Output: %q\n", shortID(r.Node), r.Output)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tcCmd)
	tcCmd.AddCommand(tcGetCmd, tcSetCmd)
	tcSetCmd.Flags().String("bw", link.Unset, "Rate in bit/s")
	tcSetCmd.Flags().String("latency", link.Unset, "Latency in ms")
	tcSetCmd.Flags().String("loss", link.Unset, "Loss in percent")
	tcSetCmd.Flags().String("queue", link.Unset, "Queue limit in packets")
}

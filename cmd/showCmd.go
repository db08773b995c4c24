package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:       "show [nodes|networks]",
	Short:     "Show Resources",
	Long:      `Show the emulator nodes or networks currently present.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"nodes", "networks"},
	RunE: func(cmd *cobra.Command, args []string) error {
		class, _ := cmd.Flags().GetString("class")
		if len(args) == 1 {
			class = args[0]
		}

		m, err := newManager()
		if err != nil {
			return err
		}
		defer m.Destroy()
		out := cmd.OutOrStdout()

		switch class {
		case "nodes":
			nodes, err := m.Nodes(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range nodes {
				info := n.Meta.EmulatorInfo
				var addrs []string
				for _, nif := range info.Nets {
					addrs = append(addrs, nif.Name+"="+nif.Address)
				}
				fmt.Fprintf(out, "Node: %s, Id: %s, ASN: %d, Role: %s, Nets: %s\n",
					info.Name, shortID(n.ID), info.ASN, info.Role, strings.Join(addrs, " "))
			}
		case "networks":
			segs, err := m.Networks(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range segs {
				info := s.Meta.EmulatorInfo
				fmt.Fprintf(out, "Network: %s, Id: %s, Type: %s, Prefix: %s\n",
					info.Name, shortID(s.ID), info.Type, info.Prefix)
			}
		default:
			return fmt.Errorf("invalid class %q", class)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().String("class", "nodes", "Class of the element to show")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"semian-go/key"
	"semian-go/resource"
)

var destroyQuiet bool

var destroyCmd = &cobra.Command{
	Use:   "destroy NAME",
	Short: "Remove a resource's semaphore set (operator cleanup, not process exit)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resource.Register(resource.Config{
			Name:          args[0],
			StaticTickets: 1,
			Permissions:   uint16(globalPermissions),
		})
		if err != nil {
			return err
		}
		if err := r.Destroy(); err != nil {
			return err
		}
		if !destroyQuiet {
			fmt.Fprintf(cmd.OutOrStdout(), "destroyed %q (key=%s)\n", args[0], key.Hex(r.Set().Key))
		}
		return nil
	},
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyQuiet, "quiet", false, "suppress confirmation output")
}

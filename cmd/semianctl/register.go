package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"semian-go/resource"
)

var (
	registerTickets int
	registerQuota   float64
	registerTimeout time.Duration
)

var registerCmd = &cobra.Command{
	Use:   "register NAME",
	Short: "Register a bulkhead resource and print its ticket inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resource.Register(resource.Config{
			Name:           args[0],
			StaticTickets:  registerTickets,
			Quota:          registerQuota,
			Permissions:    uint16(globalPermissions),
			DefaultTimeout: registerTimeout,
		})
		if err != nil {
			return err
		}
		tickets, err := r.Tickets()
		if err != nil {
			return err
		}
		configured, err := r.Count()
		if err != nil {
			return err
		}
		workers, err := r.RegisteredWorkers()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %q key=%s tickets=%d/%d workers=%d\n",
			args[0], r.Key(), tickets, configured, workers)
		return nil
	},
}

func init() {
	registerCmd.Flags().IntVar(&registerTickets, "tickets", 0, "static ticket count (mutually exclusive with --quota)")
	registerCmd.Flags().Float64Var(&registerQuota, "quota", 0, "ticket count as a fraction of registered workers, in (0, 1]")
	registerCmd.Flags().DurationVar(&registerTimeout, "default-timeout", 5*time.Second, "default Acquire timeout for this resource")
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"semian-go/resource"
)

var (
	acquireTickets int
	acquireQuota   float64
	acquireTimeout time.Duration
	acquireHold    time.Duration
)

var acquireCmd = &cobra.Command{
	Use:   "acquire NAME",
	Short: "Register, acquire one ticket, hold it, then release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resource.Register(resource.Config{
			Name:          args[0],
			StaticTickets: acquireTickets,
			Quota:         acquireQuota,
			Permissions:   uint16(globalPermissions),
		})
		if err != nil {
			return err
		}

		guard, err := r.Acquire(acquireTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "acquired ticket for %q after %dms\n", args[0], guard.WaitTimeMs)

		if acquireHold > 0 {
			time.Sleep(acquireHold)
		}

		if err := guard.Release(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "released ticket for %q\n", args[0])
		return nil
	},
}

func init() {
	acquireCmd.Flags().IntVar(&acquireTickets, "tickets", 0, "static ticket count to register with (exactly one of --tickets or --quota)")
	acquireCmd.Flags().Float64Var(&acquireQuota, "quota", 0, "quota to register with (exactly one of --tickets or --quota)")
	acquireCmd.Flags().DurationVar(&acquireTimeout, "timeout", 5*time.Second, "time to wait for a ticket")
	acquireCmd.Flags().DurationVar(&acquireHold, "hold", 0, "how long to hold the ticket before releasing")
}

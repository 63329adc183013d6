package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"semian-go/resource"
)

var (
	statTickets int
	statQuota   float64
	statWatch   bool
	statEvery   time.Duration
)

var statCmd = &cobra.Command{
	Use:   "stat NAME",
	Short: "Print (or watch) a resource's ticket inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resource.Register(resource.Config{
			Name:          args[0],
			StaticTickets: statTickets,
			Quota:         statQuota,
			Permissions:   uint16(globalPermissions),
		})
		if err != nil {
			return err
		}

		if !statWatch {
			return printStatLine(cmd, r, args[0])
		}

		ctx := contextWithSignals()
		ticker := time.NewTicker(statEvery)
		defer ticker.Stop()
		for {
			if err := printStatLine(cmd, r, args[0]); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func printStatLine(cmd *cobra.Command, r *resource.Resource, name string) error {
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

	width := 80
	if w, _, err := term.GetSize(0); err == nil && w > 0 {
		width = w
	}
	line := fmt.Sprintf("%-20s key=%-10s tickets=%3d/%-3d workers=%3d", name, r.Key(), tickets, configured, workers)
	if len(line) > width {
		line = line[:width]
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

func init() {
	statCmd.Flags().IntVar(&statTickets, "tickets", 0, "static ticket count to register with (exactly one of --tickets or --quota)")
	statCmd.Flags().Float64Var(&statQuota, "quota", 0, "quota to register with (exactly one of --tickets or --quota)")
	statCmd.Flags().BoolVar(&statWatch, "watch", false, "redraw the stat line on an interval until interrupted")
	statCmd.Flags().DurationVar(&statEvery, "every", time.Second, "redraw interval for --watch")
}

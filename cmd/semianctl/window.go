package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"semian-go/resource"
	"semian-go/slidingwindow"
)

var (
	windowScaleFactor float64
	windowThreshold   int
	windowPushValue   int
)

var windowCmd = &cobra.Command{
	Use:   "window NAME",
	Short: "Inspect or push to a resource's sliding window of recent outcomes",
	Args:  cobra.ExactArgs(1),
}

var windowValuesCmd = &cobra.Command{
	Use:   "values NAME",
	Short: "Print the sliding window's current contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sw, err := attachWindow(args[0])
		if err != nil {
			return err
		}
		values, err := sw.Values()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", values)
		return nil
	},
}

var windowPushCmd = &cobra.Command{
	Use:   "push NAME",
	Short: "Push one value onto the sliding window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sw, err := attachWindow(args[0])
		if err != nil {
			return err
		}
		if _, err := sw.Push(int32(windowPushValue)); err != nil {
			return err
		}
		values, err := sw.Values()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pushed %d, window now %v\n", windowPushValue, values)
		return nil
	},
}

func attachWindow(name string) (*slidingwindow.SlidingWindow, error) {
	r, err := resource.Register(resource.Config{
		Name:          name,
		StaticTickets: 1,
		Permissions:   uint16(globalPermissions),
	})
	if err != nil {
		return nil, err
	}
	workers, err := r.RegisteredWorkers()
	if err != nil {
		return nil, err
	}
	return slidingwindow.New(r.Set(), name, workers, windowScaleFactor, windowThreshold, uint16(globalPermissions))
}

func init() {
	windowCmd.PersistentFlags().Float64Var(&windowScaleFactor, "scale-factor", 1.0, "initial size scale factor relative to registered workers")
	windowCmd.PersistentFlags().IntVar(&windowThreshold, "threshold", 1, "floor for the window's initial size")
	windowPushCmd.Flags().IntVar(&windowPushValue, "value", 0, "value to push")

	windowCmd.AddCommand(windowValuesCmd)
	windowCmd.AddCommand(windowPushCmd)
}

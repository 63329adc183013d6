package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"semian-go/pid"
)

var (
	pidKp, pidKi, pidKd   float64
	pidWindowSize         time.Duration
	pidTargetErrorRate    float64
	pidOutcome            string
)

var pidCmd = &cobra.Command{
	Use:   "pid NAME",
	Short: "Inspect or drive a resource's adaptive rejection controller",
	Args:  cobra.ExactArgs(1),
}

var pidStatusCmd = &cobra.Command{
	Use:   "status NAME",
	Short: "Print the controller's current metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := attachController(args[0])
		if err != nil {
			return err
		}
		m, err := c.Metrics()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"rejection_rate=%.4f err_rate=%.4f ping_failure_rate=%.4f success=%d error=%d rejected=%d ping_success=%d ping_failure=%d\n",
			m.RejectionRate, m.ErrRate, m.PingFailureRate, m.Success, m.Error, m.Rejected, m.PingSuccess, m.PingFailure)
		return nil
	},
}

var pidUpdateCmd = &cobra.Command{
	Use:   "update NAME",
	Short: "Run one control-loop step and print the resulting rejection rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := attachController(args[0])
		if err != nil {
			return err
		}
		rate, err := c.Update()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rejection_rate=%.4f\n", rate)
		return nil
	},
}

var pidRecordCmd = &cobra.Command{
	Use:   "record NAME",
	Short: "Record one request outcome (success, error, or rejected)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := attachController(args[0])
		if err != nil {
			return err
		}
		var outcome pid.Outcome
		switch pidOutcome {
		case "success":
			outcome = pid.Success
		case "error":
			outcome = pid.Error
		case "rejected":
			outcome = pid.Rejected
		default:
			return fmt.Errorf("--outcome must be one of success, error, rejected")
		}
		return c.RecordRequest(outcome)
	},
}

func attachController(name string) (*pid.Controller, error) {
	return pid.NewController(pid.Config{
		Name:            name,
		Kp:              pidKp,
		Ki:              pidKi,
		Kd:              pidKd,
		WindowSize:      pidWindowSize,
		TargetErrorRate: pidTargetErrorRate,
		Permissions:     uint16(globalPermissions),
	})
}

func init() {
	pidCmd.PersistentFlags().Float64Var(&pidKp, "kp", 0.9, "proportional gain (only used when creating the controller)")
	pidCmd.PersistentFlags().Float64Var(&pidKi, "ki", 0, "integral gain")
	pidCmd.PersistentFlags().Float64Var(&pidKd, "kd", 0, "derivative gain")
	pidCmd.PersistentFlags().DurationVar(&pidWindowSize, "window-size", time.Second, "control-loop window duration")
	pidCmd.PersistentFlags().Float64Var(&pidTargetErrorRate, "target-error-rate", 0.01, "fixed target error rate (0 to use p90-of-history)")
	pidRecordCmd.Flags().StringVar(&pidOutcome, "outcome", "success", "success, error, or rejected")

	pidCmd.AddCommand(pidStatusCmd)
	pidCmd.AddCommand(pidUpdateCmd)
	pidCmd.AddCommand(pidRecordCmd)
}

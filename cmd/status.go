package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		counts, err := st.CountQueueByStatus(ctx)
		if err != nil {
			return err
		}
		eligible, err := st.CountEligible(ctx, cfg.Worker.MaxAttempts)
		if err != nil {
			return err
		}

		fmt.Printf("pending:    %d\n", counts.Pending)
		fmt.Printf("processing: %d\n", counts.Processing)
		fmt.Printf("completed:  %d\n", counts.Completed)
		fmt.Printf("failed:     %d\n", counts.Failed)
		fmt.Printf("eligible:   %d (max %d attempts)\n", eligible, cfg.Worker.MaxAttempts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

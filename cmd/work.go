package main

import (
	"github.com/spf13/cobra"
)

var workGeneration int

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run one worker invocation against the queue",
	Long:  "Claims and executes queued work in bounded batches. Successor generations run synchronously so the process exits only when the chain is done.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return foregroundWorker(ctx, env).Run(ctx, workGeneration)
	},
}

func init() {
	workCmd.Flags().IntVar(&workGeneration, "generation", 0, "generation to start at, successors count up from here")
	rootCmd.AddCommand(workCmd)
}

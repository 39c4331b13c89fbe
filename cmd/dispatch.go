package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalworks/visibility-cli/internal/worker"
)

var dispatchProjectID string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Scan for unprocessed prompts, enqueue them, and run workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// One-shot invocation: the launched workers must chain their
		// successors synchronously or the process exits mid-drain.
		d := worker.NewDispatcher(env.Store, foregroundWorker(ctx, env), cfg.Dispatch)

		var enqueued int
		if dispatchProjectID != "" {
			enqueued, err = d.RunForProject(ctx, dispatchProjectID)
		} else {
			enqueued, err = d.Run(ctx)
		}
		if err != nil {
			return err
		}

		zap.L().Info("dispatch complete", zap.Int("enqueued", enqueued))
		return nil
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchProjectID, "project", "", "restrict the scan to one project")
	rootCmd.AddCommand(dispatchCmd)
}

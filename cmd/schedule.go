package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleCron string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the dispatcher on a cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		expr := scheduleCron
		if expr == "" {
			expr = cfg.Schedule.Cron
		}

		c := cron.New()
		_, err = c.AddFunc(expr, func() {
			enqueued, err := env.Dispatcher.Run(ctx)
			if err != nil {
				zap.L().Error("scheduled dispatch failed", zap.Error(err))
				return
			}
			zap.L().Info("scheduled dispatch complete", zap.Int("enqueued", enqueued))
		})
		if err != nil {
			return eris.Wrapf(err, "invalid cron expression %q", expr)
		}

		zap.L().Info("scheduler started", zap.String("cron", expr))
		c.Start()

		<-ctx.Done()
		zap.L().Info("scheduler stopping")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression (default from config)")
	rootCmd.AddCommand(scheduleCmd)
}

package main

import (
	"context"
	"time"

	"github.com/kursadbilgin/simplesla-notifier/internal/config"
	"github.com/kursadbilgin/simplesla-notifier/internal/provider"
	"github.com/kursadbilgin/simplesla-notifier/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dependencies are swapped out in tests.
type dependencies struct {
	loadEnv      func() (*config.JobEnv, error)
	provider     provider.Provider
	newPublisher func(ctx context.Context, url string, logger *zap.Logger) (queue.Publisher, error)
	now          func() time.Time
}

func defaultDependencies() dependencies {
	return dependencies{
		loadEnv:  config.LoadJobEnv,
		provider: provider.NewSimpleSLAProvider(),
		newPublisher: func(ctx context.Context, url string, logger *zap.Logger) (queue.Publisher, error) {
			broker, err := queue.NewRabbitMQ(ctx, url, logger)
			if err != nil {
				return nil, err
			}
			return queue.NewRabbitMQPublisher(broker), nil
		},
		now: time.Now,
	}
}

func newRootCommand(deps dependencies) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "slanotify",
		Short:         "Send notifications to SimpleSLA monitoring server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newNotifyCommand(deps, &logLevel))
	rootCmd.AddCommand(newPublishCommand(deps, &logLevel))

	return rootCmd
}

package main

import (
	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"github.com/kursadbilgin/simplesla-notifier/internal/service"
	"github.com/spf13/cobra"
)

func newNotifyCommand(deps dependencies, logLevel *string) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send the finished build's status to the monitoring server",
		Long: "Send the finished build's status to the monitoring server.\n\n" +
			"Delivery problems are logged and never fail the command, so a CI job\n" +
			"is not marked failed because monitoring is unreachable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := deps.loadEnv()
			if err != nil {
				return err
			}

			completion, settings, err := flags.completion(cmd, env, deps.now())
			if err != nil {
				return err
			}

			logger, err := observability.NewConsoleLogger(*logLevel, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			notifier, err := service.NewNotifierService(deps.provider, logger)
			if err != nil {
				return err
			}

			outcome, err := completion.Outcome()
			if err != nil {
				return err
			}

			notifier.Perform(cmd.Context(), outcome, domain.NotificationConfig{
				Job:      completion.Job(),
				Settings: settings,
			}, completion.RootURL)

			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

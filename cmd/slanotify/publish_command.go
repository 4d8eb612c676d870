package main

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"github.com/kursadbilgin/simplesla-notifier/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPublishCommand(deps dependencies, logLevel *string) *cobra.Command {
	var flags buildFlags
	var brokerURL string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the finished build to the notifier's message queue",
		Long: "Publish the finished build to the " + queue.BuildsCompletedQueue + " queue; a running\n" +
			"notifier service performs the delivery. Broker problems are logged and\n" +
			"never fail the command.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := deps.loadEnv()
			if err != nil {
				return err
			}

			completion, _, err := flags.completion(cmd, env, deps.now())
			if err != nil {
				return err
			}

			logger, err := observability.NewConsoleLogger(*logLevel, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			url := strings.TrimSpace(brokerURL)
			if url == "" {
				url = strings.TrimSpace(os.Getenv("RABBITMQ_URL"))
			}

			msg := queue.BuildCompletedMessage{
				CorrelationID:   uuid.NewString(),
				BuildCompletion: completion,
			}
			logger = logger.With(
				zap.String("correlationId", msg.CorrelationID),
				zap.String("job", completion.JobName),
				zap.Int("build", completion.BuildNumber),
			)

			publisher, err := deps.newPublisher(cmd.Context(), url, logger)
			if err != nil {
				logger.Error("message broker unavailable, build completion not published", zap.Error(err))
				return nil
			}
			defer publisher.Close() //nolint:errcheck

			if err := publisher.Publish(cmd.Context(), queue.BuildsCompletedQueue, msg); err != nil {
				logger.Error("publishing build completion failed", zap.Error(err))
				return nil
			}

			logger.Info("build completion published", zap.String("queue", queue.BuildsCompletedQueue))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&brokerURL, "amqp-url", "", "RabbitMQ URL (default $RABBITMQ_URL)")
	return cmd
}

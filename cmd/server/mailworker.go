package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/bean-counter/internal/logging"
	"github.com/iliyamo/bean-counter/internal/queue"
)

func mailWorkerCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "mail-worker",
		Short: "Consume the mail queue into the mail log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.RabbitURL == "" {
				return errors.New("RABBITMQ_URL is not set")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := &queue.MailConsumer{URL: cfg.RabbitURL, Queue: cfg.MailQueue, Dir: dir}
			logging.Info().Str("queue", cfg.MailQueue).Msg("mail worker started")
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "logs", "directory of mail.log")
	return cmd
}

package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process unseen mail once and exit",
		Long: `Reads every unseen message, executes the commands of authorized senders in
priority order and marks all of them seen. Exits non-zero only when the
mailbox cannot be read; failed commands are logged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, err = a.engine(a.registry).RunOnce(ctx)
			return err
		},
	}
}

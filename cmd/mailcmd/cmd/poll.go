package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sekia-ai/mailcmd/internal/dispatch"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Process unseen mail every poll.interval until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			poller := dispatch.NewPoller(
				dispatch.PollerConfig{
					Interval:     a.cfg.Poll.Interval,
					ServicesPath: a.cfg.Services.Path,
					Watch:        a.cfg.Services.Watch,
				},
				a.registry,
				func(reg *registry.Registry) dispatch.Runner { return a.engine(reg) },
				a.router.Verify,
				a.logger,
			)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				errCh <- poller.Run(ctx)
			}()

			a.logger.Info().
				Str("server", a.cfg.IMAP.Server).
				Str("mailbox", a.cfg.IMAP.Mailbox).
				Dur("poll_interval", a.cfg.Poll.Interval).
				Bool("watch_services", a.cfg.Services.Watch).
				Msg("mailcmd polling")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				a.logger.Info().Str("signal", sig.String()).Msg("shutting down")
			case err := <-errCh:
				return err
			}
			cancel()
			return <-errCh
		},
	}
}

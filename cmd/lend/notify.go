package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/lendclient/internal/model"
	"github.com/and161185/lendclient/internal/notify"
)

func newNotifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Real-time notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	var (
		count   int
		timeout time.Duration
	)
	listen := &cobra.Command{
		Use:   "listen",
		Short: "Print notifications as they arrive",
		Long: `Connect to the notification socket and print each event as one line of
JSON. Stops on Ctrl+C, after --count events, or after --timeout.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			seen := 0
			handle := func(n model.Notification) {
				fmt.Fprintf(a.out, "%s %s\n", n.Type, n.Data)
				seen++
				if count > 0 && seen >= count {
					cancel()
				}
			}
			c := notify.New(a.cfg.WebSocketURL(), a.state.AccessToken, handle,
				notify.WithReconnect(a.cfg.Notify.MaxAttempts, a.cfg.Notify.Interval),
				notify.WithLogger(a.log.Named("notify")),
				notify.WithMetrics(a.metrics),
			)
			return c.Run(ctx)
		},
	}
	listen.Flags().IntVarP(&count, "count", "n", 0, "stop after this many events (0 = unlimited)")
	listen.Flags().DurationVar(&timeout, "timeout", 0, "stop after this long (0 = unlimited)")
	cmd.AddCommand(listen)
	return cmd
}

package main

import (
	"context"
	"time"

	"github.com/nats-io/nuid"
	"github.com/spf13/cobra"

	"github.com/next-trace/scg-port-bus/messages"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		to      string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send type [payload]",
		Short: "Send one request and print the reply",
		Long: "Opens a port named type, posts payload (JSON, or a bare string) and prints the\n" +
			"first reply. Without --to the request goes to the configured target.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			// A private endpoint keeps replies away from any server sharing the configured one.
			h, closeHost, err := openHost(ctx, a.cfg, "cli-"+nuid.Next(), a.logger)
			if err != nil {
				return err
			}
			defer closeHost()

			var payload any
			if len(args) == 2 {
				payload = parseValue(args[1])
			}

			m := messages.NewMessenger(h, a.logger)

			var reply any
			if to != "" {
				reply, err = m.RequestTo(ctx, to, args[0], payload)
			} else {
				reply, err = m.Request(ctx, args[0], payload)
			}

			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), reply)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "endpoint to address instead of the configured target")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up waiting for a reply after this long")

	return cmd
}

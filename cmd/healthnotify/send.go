package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/healthnotify/internal/session"
)

func newSendCmd(a *app) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "send <destination> <payload>",
		Short: "Publish one payload to a destination on the push server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// One-shot: no reconnect attempts after a failed handshake.
			sess := newSession(a, session.WithMaxReconnectAttempts(0))
			if err := sess.Connect(cmd.Context(), a.cfg.Token); err != nil {
				sess.Disconnect()
				return err
			}
			defer sess.Disconnect()

			if err := sess.Publish(args[0], contentType, []byte(args[1])); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %s\n", len(args[1]), args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "application/json", "content type of the payload")
	return cmd
}

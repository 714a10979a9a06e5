package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEventsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Suggest the next narrative events",
		Long:  "Take a snapshot of the story and suggest up to --max pending narrative events. There is always at least one suggestion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.PendingEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.print(res, func() string {
				var b strings.Builder
				for _, ev := range res.Events {
					fmt.Fprintf(&b, "%s [%s/%s] %s: %s\n", ev.ID, ev.Priority, ev.Type, ev.Title, ev.Description)
				}
				for _, w := range res.Warnings {
					fmt.Fprintf(&b, "%s\n", w)
				}
				return strings.TrimSuffix(b.String(), "\n")
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "max", "n", 0, "Maximum number of events (default from config)")
	return cmd
}

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <event-id> <outcome>",
		Short: "Mark a suggested event as executed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := c.ResolveEvent(args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			ev, err := c.Event(args[0])
			if err != nil {
				return err
			}
			return a.print(ev, func() string { return string(ev.Status) })
		},
	}
}

func newDismissCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <event-id> [reason]",
		Short: "Reject a suggested event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.DismissEvent(args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			ev, err := c.Event(args[0])
			if err != nil {
				return err
			}
			return a.print(ev, func() string { return string(ev.Status) })
		},
	}
}

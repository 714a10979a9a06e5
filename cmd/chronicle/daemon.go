package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/backup"
	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/inbox"
)

func newDaemonCommand(a *app) *cobra.Command {
	var (
		schedule, inboxDir string
		once               bool
	)
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled maintenance for every persisted campaign",
		Long: strings.TrimSpace(`Run memory maintenance and event expiry for every persisted campaign on a
cron schedule (campaign.schedule, default hourly). Each pass loads all
campaigns, maintains and saves them, then unloads idle ones. With
backup.enabled every pass ends by archiving all campaigns.

Turns handed over with "chronicle submit" are applied from the inbox
directory (campaign.inbox) as they arrive.

A campaign has a single writer: do not run the daemon while another process
is playing the same campaigns against the same storage.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule == "" {
				schedule = a.cfg.Campaign.Schedule
			}
			if inboxDir == "" {
				inboxDir = a.cfg.Campaign.Inbox
			}
			opts := []campaign.SchedulerOption{campaign.WithLoadAll()}
			if a.cfg.Backup.Enabled {
				svc, err := backup.NewService(a.store, a.cfg.BackupServiceConfig())
				if err != nil {
					return err
				}
				opts = append(opts, campaign.WithAfterPass(func(ctx context.Context) error {
					_, err := svc.BackupNow(ctx)
					return err
				}))
			}
			s, err := campaign.NewScheduler(a.registry, schedule, opts...)
			if err != nil {
				return err
			}
			var watcher *inbox.Watcher
			if inboxDir != "" {
				watcher = inbox.NewWatcher(inboxDir, a.applyTurn)
			}
			if once {
				if watcher != nil {
					if _, err := watcher.Drain(cmd.Context()); err != nil {
						return err
					}
				}
				tick, err := s.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(tick, nil)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if watcher != nil {
				if err := watcher.Start(ctx); err != nil {
					return err
				}
				defer watcher.Stop()
			}
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("daemon stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression (default from config)")
	cmd.Flags().StringVar(&inboxDir, "inbox", "", "Inbox directory for submitted turns (default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/backup"
)

func newBackupCommand(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive and restore persisted campaigns",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Archive directory (default from config)")

	service := func() (*backup.Service, error) {
		cfg := a.cfg.BackupServiceConfig()
		if dir != "" {
			cfg.Dir = dir
		}
		return backup.NewService(a.store, cfg)
	}

	nowCmd := &cobra.Command{
		Use:   "now",
		Short: "Archive every persisted campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Loaded campaigns are saved first so the archive sees them.
			if err := a.registry.SaveAll(cmd.Context()); err != nil {
				return err
			}
			svc, err := service()
			if err != nil {
				return err
			}
			res, err := svc.BackupNow(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(res, func() string { return res.Path })
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archives, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service()
			if err != nil {
				return err
			}
			archives, err := svc.List()
			if err != nil {
				return err
			}
			return a.print(archives, func() string {
				var b strings.Builder
				for _, info := range archives {
					fmt.Fprintf(&b, "%s %s %d\n", info.Timestamp.Format("2006-01-02 15:04:05"), info.Path, info.Size)
				}
				return strings.TrimSuffix(b.String(), "\n")
			})
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore every campaign in an archive, replacing its stored state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service()
			if err != nil {
				return err
			}
			ids, err := svc.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				a.registry.Discard(id)
			}
			return a.print(map[string]any{"restored": ids}, func() string { return strings.Join(ids, "\n") })
		},
	}

	cmd.AddCommand(nowCmd, listCmd, restoreCmd)
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/config"
	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/internal/llm"
	"github.com/scrypster/chronicle/internal/storage"
	"github.com/scrypster/chronicle/internal/storage/postgres"
	"github.com/scrypster/chronicle/internal/storage/sqlite"
)

// app carries what every subcommand needs once the root pre-run has loaded
// the configuration and opened storage.
type app struct {
	out        io.Writer
	configPath string
	campaignID string
	format     string
	dsn        string

	cfg      *config.Config
	store    storage.StateStore
	gen      llm.TextGenerator
	registry *campaign.Registry
}

// execute runs one invocation. Loaded campaigns are saved and storage is
// closed even when the command fails.
func execute(ctx context.Context, out io.Writer, args []string) error {
	a := &app{out: out}
	root := newRootCommand(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close(ctx))
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "chronicle",
		Short: "Story continuity and pacing engine",
		Long: strings.TrimSpace(`chronicle remembers what happened in a campaign, recalls it for the
narrator, tracks character arcs and plot threads, and suggests the next
narrative beat.

Configuration comes from defaults, an optional YAML file (--config) and
CHRONICLE_* environment variables, in that order.`),
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.open() },
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("CHRONICLE_CONFIG"), "Path to a YAML config file (default: $CHRONICLE_CONFIG)")
	flags.StringVarP(&a.campaignID, "campaign", "c", "default", "Campaign id")
	flags.StringVarP(&a.format, "format", "f", "json", "Output format: json or text")
	flags.StringVar(&a.dsn, "db", "", "Storage DSN (overrides config)")

	root.AddCommand(
		newRecordCommand(a),
		newRecallCommand(a),
		newSnapshotCommand(a),
		newMaintainCommand(a),
		newEventsCommand(a),
		newResolveCommand(a),
		newDismissCommand(a),
		newArcCommand(a),
		newThreadCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newCampaignsCommand(a),
		newPlayCommand(a),
		newDaemonCommand(a),
		newBackupCommand(a),
		newSubmitCommand(a),
		newNotesCommand(a),
		newMCPCommand(a),
	)
	return root
}

func (a *app) open() error {
	if a.format != "json" && a.format != "text" {
		return fmt.Errorf("unknown format %q", a.format)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dsn != "" {
		cfg.Storage.DSN = a.dsn
	}
	a.cfg = cfg
	log.SetLevel(cfg.Level())

	a.store, err = openStore(cfg.Storage)
	if err != nil {
		return err
	}
	a.gen, err = llm.NewTextGenerator(cfg.ProviderConfig())
	if err != nil {
		return err
	}

	var opts []campaign.Option
	if a.gen != nil {
		opts = append(opts, campaign.WithExtractor(engine.NewLLMExtractor(a.gen, nil)))
	}
	a.registry, err = campaign.NewRegistry(a.store, cfg.CampaignConfig(), cfg.Campaign.IdleTimeout, opts...)
	return err
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Close(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func openStore(cfg config.StorageConfig) (storage.StateStore, error) {
	log.Debug("opening state store", "driver", cfg.Driver, "dsn", storage.RedactDSN(cfg.DSN))
	switch cfg.Driver {
	case "postgres":
		return postgres.NewStateStore(cfg.DSN)
	default:
		if cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return sqlite.NewStateStore(cfg.DSN)
	}
}

// campaign returns the campaign selected with --campaign.
func (a *app) campaign(ctx context.Context) (*campaign.Campaign, error) {
	return a.registry.Get(ctx, a.campaignID)
}

// print writes v as indented JSON, or text() when --format text and text is
// not nil.
func (a *app) print(v any, text func() string) error {
	if a.format == "text" && text != nil {
		_, err := fmt.Fprintln(a.out, text())
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

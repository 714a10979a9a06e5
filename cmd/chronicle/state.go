package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/storage"
)

func newExportCommand(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the campaign state document",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			var blob []byte
			switch format {
			case "json":
				st := c.State()
				blob, err = json.MarshalIndent(&st, "", "  ")
			case "yaml":
				blob, err = c.ExportYAML()
			default:
				return fmt.Errorf("unknown export format %q", format)
			}
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = a.out.Write(blob)
				return err
			}
			return os.WriteFile(output, blob, 0o600)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a campaign state document",
		Long: strings.TrimSpace(`Import a state document written by export. Files ending in .yaml or .yml
are read as YAML, everything else as JSON. The campaign id comes from the
document and replaces any stored state of that campaign. Damaged sections
and items are dropped and reported.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if ext := filepath.Ext(args[0]); ext == ".yaml" || ext == ".yml" {
				var st campaign.State
				if err := yaml.Unmarshal(blob, &st); err != nil {
					return fmt.Errorf("parse %s: %w", args[0], err)
				}
				if blob, err = json.Marshal(&st); err != nil {
					return err
				}
			}

			c, report, err := campaign.LoadState(blob, a.cfg.CampaignConfig())
			if err != nil {
				return err
			}
			canonical, err := c.SaveState()
			if err != nil {
				return err
			}
			a.registry.Discard(c.ID())
			if err := a.store.SaveState(cmd.Context(), c.ID(), canonical); err != nil {
				return err
			}

			skipped := make([]string, len(report.Skipped))
			for i, e := range report.Skipped {
				skipped[i] = e.Error()
			}
			out := map[string]any{"campaign_id": c.ID(), "memories": c.Memories().Len(), "dropped": report.Dropped, "skipped": skipped}
			return a.print(out, func() string {
				return fmt.Sprintf("imported %s (%d memories, %d sections dropped, %d items skipped)", c.ID(), c.Memories().Len(), len(report.Dropped), len(skipped))
			})
		},
	}
}

func newCampaignsCommand(a *app) *cobra.Command {
	var opts storage.ListOptions
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List persisted campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.store.ListCampaigns(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.print(page, func() string {
				var b strings.Builder
				tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CAMPAIGN\tSAVED\tBYTES")
				for _, info := range page.Items {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", info.ID, info.SavedAt.Format("2006-01-02 15:04"), info.Bytes)
				}
				tw.Flush()
				return strings.TrimSuffix(b.String(), "\n")
			})
		},
	}
	cmd.Flags().IntVar(&opts.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Page size")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "saved_at", "campaign_id, saved_at or size_bytes")
	cmd.Flags().StringVar(&opts.SortOrder, "order", "desc", "asc or desc")
	return cmd
}

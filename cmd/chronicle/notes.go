package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/notes"
)

type notesResult struct {
	Files     int      `json:"files"`
	Entries   int      `json:"entries"`
	Campaigns []string `json:"campaigns"`
}

func newNotesCommand(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "notes <file|dir>...",
		Short: "Record Markdown session notes as narration",
		Long: strings.TrimSpace(`Record Markdown session notes (an Obsidian vault or a plain folder) as
narration. Each paragraph and list item becomes one memory. Frontmatter may
set campaign, session, owner, date, location and tags; notes without a
campaign go to --campaign. [[Wiki links]] name participants and #tags add
themes. Directories are read in date order.`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := notes.ParsePaths(args...)
			if err != nil {
				return err
			}
			if dryRun {
				return a.print(docs, nil)
			}

			ctx := cmd.Context()
			res := notesResult{Files: len(docs)}
			for _, doc := range docs {
				id := doc.Campaign
				if id == "" {
					id = a.campaignID
				}
				c, err := a.registry.Get(ctx, id)
				if err != nil {
					return err
				}
				for _, e := range doc.Entries {
					_, err := c.RecordAnnotatedNarration(ctx, e.Text, doc.Owner, doc.Session, campaign.Annotation{
						Themes:       e.Themes,
						Participants: e.Participants,
						Location:     doc.Location,
					})
					if err != nil {
						return fmt.Errorf("%s: %w", doc.Path, err)
					}
					res.Entries++
				}
				if !slices.Contains(res.Campaigns, id) {
					res.Campaigns = append(res.Campaigns, id)
				}
			}
			for _, id := range res.Campaigns {
				if err := a.registry.Save(ctx, id); err != nil {
					return err
				}
			}
			return a.print(res, func() string {
				return fmt.Sprintf("%d entries from %d files into %s", res.Entries, res.Files, strings.Join(res.Campaigns, ", "))
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the parsed notes without recording them")
	return cmd
}

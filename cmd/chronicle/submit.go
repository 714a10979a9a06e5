package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/inbox"
	"github.com/scrypster/chronicle/pkg/types"
)

func newSubmitCommand(a *app) *cobra.Command {
	var (
		owner, session, kind, emotions, themes, dir string
		weight                                      float64
	)
	cmd := &cobra.Command{
		Use:   "submit [text]",
		Short: "Hand a turn to the running daemon",
		Long: strings.TrimSpace(`Like record, but the turn is written to the inbox directory
(campaign.inbox) and applied by the daemon instead of this process. Use it
while a daemon owns the campaigns.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Campaign.Inbox
			}
			if dir == "" {
				return fmt.Errorf("no inbox configured (campaign.inbox or --inbox)")
			}
			t := inbox.Turn{
				CampaignID: a.campaignID,
				Text:       text,
				OwnerID:    owner,
				SessionID:  session,
				Kind:       kind,
				Emotions:   splitList(emotions),
				Themes:     splitList(themes),
			}
			if cmd.Flags().Changed("weight") {
				t.Weight = &weight
			}
			path, err := inbox.NewWriter(dir).Submit(t)
			if err != nil {
				return err
			}
			return a.print(map[string]string{"file": path}, func() string { return path })
		},
	}
	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Character or player the memory belongs to")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Play session id")
	cmd.Flags().Float64VarP(&weight, "weight", "w", 0, "Emotional weight in [0,1]; disables inference")
	cmd.Flags().StringVar(&kind, "kind", string(types.KindEvent), "Memory kind (with --weight)")
	cmd.Flags().StringVar(&emotions, "emotions", "", "Comma-separated emotional tags (with --weight)")
	cmd.Flags().StringVar(&themes, "themes", "", "Comma-separated thematic tags (with --weight)")
	cmd.Flags().StringVar(&dir, "inbox", "", "Inbox directory (default from config)")
	return cmd
}

// applyTurn records a submitted turn in its campaign and saves it.
func (a *app) applyTurn(ctx context.Context, t inbox.Turn) error {
	c, err := a.registry.Get(ctx, t.CampaignID)
	if err != nil {
		return err
	}
	if t.Weight == nil {
		_, err = c.RecordNarration(ctx, t.Text, t.OwnerID, t.SessionID)
	} else {
		_, err = c.RecordEvent(t.Record())
	}
	if err != nil {
		return err
	}
	return a.registry.Save(ctx, t.CampaignID)
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/pkg/types"
)

func newRecordCommand(a *app) *cobra.Command {
	var (
		owner, session, kind, emotions, themes string
		weight                                 float64
	)
	cmd := &cobra.Command{
		Use:   "record [text]",
		Short: "Record something that happened",
		Long: strings.TrimSpace(`Record something that happened. Text can be given as arguments or piped
on stdin. Without --weight the emotional weight, tags and kind are inferred
from the text; with --weight the record is stored exactly as given.`),
		Example: strings.Join([]string{
			`  chronicle record "Oskar betrayed the caravan at the Salt Gate"`,
			`  chronicle record --weight 0.9 --emotions anger --themes betrayal "The party was betrayed"`,
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args)
			if err != nil {
				return err
			}
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("weight") {
				n, err := c.RecordNarration(cmd.Context(), text, owner, session)
				if err != nil {
					return err
				}
				return a.print(n, func() string { return n.MemoryID })
			}
			id, err := c.RecordEvent(types.NewRecord{
				Content:         text,
				Kind:            types.MemoryKind(kind),
				OwnerID:         owner,
				SessionID:       session,
				EmotionalWeight: weight,
				EmotionalTags:   splitList(emotions),
				ThematicTags:    splitList(themes),
			})
			if err != nil {
				return err
			}
			return a.print(map[string]string{"memory_id": id}, func() string { return id })
		},
	}
	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Character or player the memory belongs to")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Play session id")
	cmd.Flags().Float64VarP(&weight, "weight", "w", 0, "Emotional weight in [0,1]; disables inference")
	cmd.Flags().StringVar(&kind, "kind", string(types.KindEvent), "Memory kind (with --weight)")
	cmd.Flags().StringVar(&emotions, "emotions", "", "Comma-separated emotional tags (with --weight)")
	cmd.Flags().StringVar(&themes, "themes", "", "Comma-separated thematic tags (with --weight)")
	return cmd
}

// readText joins args, or reads stdin when it is piped and args are empty.
func readText(args []string) (string, error) {
	text := strings.Join(args, " ")
	if text == "" {
		stat, err := os.Stdin.Stat()
		if err == nil && stat.Mode()&os.ModeCharDevice == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return "", fmt.Errorf("read stdin: %w", err)
			}
			text = string(b)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("text is required (arguments or stdin)")
	}
	return text, nil
}

func newRecallCommand(a *app) *cobra.Command {
	var (
		q      engine.RecallQuery
		layer  string
		themes string
		since  time.Duration
		budget int
	)
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Recall memories for the narrator",
		Long:  "Recall the most significant matching memories and render them as prompt context. Recalled memories are reinforced.",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Text = strings.Join(args, " ")
			q.Layer = types.Layer(layer)
			q.Themes = splitList(themes)
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.RecallContext(q, budget)
			if err != nil {
				return err
			}
			return a.print(res, func() string { return res.Context.Text })
		},
	}
	cmd.Flags().StringVarP(&q.OwnerID, "owner", "o", "", "Only memories of this owner")
	cmd.Flags().StringVarP(&q.SessionID, "session", "s", "", "Only memories of this session")
	cmd.Flags().StringVar(&q.Emotion, "emotion", "", "Only memories carrying this emotion")
	cmd.Flags().StringVar(&themes, "themes", "", "Comma-separated themes; any must match")
	cmd.Flags().StringVar(&layer, "layer", "", "short_term, mid_term or long_term")
	cmd.Flags().DurationVar(&since, "since", 0, "Only memories newer than this")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 0, "Maximum memories (default from config)")
	cmd.Flags().IntVar(&budget, "budget", 0, "Token budget of the rendered context; 0 uses config, negative disables")
	return cmd
}

func newSnapshotCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Show where the story stands",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := c.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(snap, nil)
		},
	}
}

func newMaintainCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Promote, decay and evict memories and expire stale events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			res := c.Maintain()
			return a.print(res, nil)
		},
	}
}

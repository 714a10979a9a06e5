package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/pkg/types"
)

func newArcCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arc",
		Short: "Manage character arcs",
	}

	var create narrative.NewArc
	var arcType string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Start a character arc",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			create.Type = types.ArcType(arcType)
			arc, err := c.CreateArc(create)
			if err != nil {
				return err
			}
			return a.print(arc, func() string { return arc.ID })
		},
	}
	createCmd.Flags().StringVar(&create.CharacterID, "character", "", "Character id (required)")
	createCmd.Flags().StringVar(&arcType, "type", string(types.ArcGrowth), "growth, redemption, quest, tragedy, relationship or mystery")
	createCmd.Flags().StringVar(&create.Description, "description", "", "What the arc is about")
	_ = createCmd.MarkFlagRequired("character")

	var milestone narrative.NewMilestone
	var memoryIDs string
	milestoneCmd := &cobra.Command{
		Use:   "milestone <arc-id> <title>",
		Short: "Add a milestone to an arc",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			milestone.Title = strings.Join(args[1:], " ")
			milestone.MemoryIDs = splitList(memoryIDs)
			arc, err := c.AddMilestone(args[0], milestone)
			if err != nil {
				return err
			}
			return a.print(arc, nil)
		},
	}
	milestoneCmd.Flags().StringVar(&milestone.Description, "description", "", "Milestone description")
	milestoneCmd.Flags().Float64Var(&milestone.Completion, "completion", 0, "Completion in [0,1]")
	milestoneCmd.Flags().StringVar(&memoryIDs, "memories", "", "Comma-separated memory ids")

	progressCmd := &cobra.Command{
		Use:   "progress <arc-id> <milestone-index> <completion>",
		Short: "Update the completion of a milestone",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("milestone index: %w", err)
			}
			completion, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("completion: %w", err)
			}
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			arc, err := c.SetMilestoneCompletion(args[0], index, completion)
			if err != nil {
				return err
			}
			return a.print(arc, nil)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <arc-id> <active|paused|completed|abandoned>",
		Short: "Change the status of an arc",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			arc, err := c.SetArcStatus(args[0], types.ArcStatus(args[1]))
			if err != nil {
				return err
			}
			return a.print(arc, func() string { return string(arc.Status) })
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List arcs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			arcs := c.Arcs().List()
			return a.print(arcs, func() string {
				var b strings.Builder
				for _, arc := range arcs {
					fmt.Fprintf(&b, "%s %s %s %.0f%% %s\n", arc.ID, arc.CharacterID, arc.Status, arc.Completion()*100, arc.Description)
				}
				return strings.TrimSuffix(b.String(), "\n")
			})
		},
	}

	cmd.AddCommand(createCmd, milestoneCmd, progressCmd, statusCmd, listCmd)
	return cmd
}

func newThreadCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Manage plot threads",
	}

	var open narrative.NewThread
	var threadType, characters string
	openCmd := &cobra.Command{
		Use:   "open <name>",
		Short: "Open a plot thread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			open.Name = strings.Join(args, " ")
			open.Type = types.ThreadType(threadType)
			open.CharacterIDs = splitList(characters)
			th, err := c.OpenThread(open)
			if err != nil {
				return err
			}
			return a.print(th, func() string { return th.ID })
		},
	}
	openCmd.Flags().StringVar(&threadType, "type", string(types.ThreadQuest), "mystery, quest, relationship, world_event or political")
	openCmd.Flags().StringVar(&open.Description, "description", "", "What the thread is about")
	openCmd.Flags().IntVarP(&open.Priority, "priority", "p", 5, "Priority from 1 to 10")
	openCmd.Flags().StringVar(&characters, "characters", "", "Comma-separated character ids")

	var update narrative.NewUpdate
	var updatePriority int
	var updateMemories string
	updateCmd := &cobra.Command{
		Use:   "update <thread-id> <title>",
		Short: "Record progress on a thread",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			update.Title = strings.Join(args[1:], " ")
			update.MemoryIDs = splitList(updateMemories)
			if cmd.Flags().Changed("priority") {
				update.Priority = &updatePriority
			}
			th, err := c.AddThreadUpdate(args[0], update)
			if err != nil {
				return err
			}
			return a.print(th, nil)
		},
	}
	updateCmd.Flags().StringVar(&update.Description, "description", "", "Update description")
	updateCmd.Flags().IntVarP(&updatePriority, "priority", "p", 0, "New thread priority")
	updateCmd.Flags().StringVar(&updateMemories, "memories", "", "Comma-separated memory ids")

	var resolveMemories string
	resolveCmd := &cobra.Command{
		Use:   "resolve <thread-id> <resolution>",
		Short: "Resolve a thread",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			th, err := c.ResolveThread(args[0], strings.Join(args[1:], " "), splitList(resolveMemories))
			if err != nil {
				return err
			}
			return a.print(th, func() string { return string(th.Status) })
		},
	}
	resolveCmd.Flags().StringVar(&resolveMemories, "memories", "", "Comma-separated memory ids")

	abandonCmd := &cobra.Command{
		Use:   "abandon <thread-id> [reason]",
		Short: "Abandon a thread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			th, err := c.AbandonThread(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return a.print(th, func() string { return string(th.Status) })
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			threads := c.Threads().List()
			return a.print(threads, func() string {
				var b strings.Builder
				for _, th := range threads {
					fmt.Fprintf(&b, "%s p%d %s %s: %s\n", th.ID, th.Priority, th.Status, th.Type, th.Name)
				}
				return strings.TrimSuffix(b.String(), "\n")
			})
		},
	}

	cmd.AddCommand(openCmd, updateCmd, resolveCmd, abandonCmd, listCmd)
	return cmd
}

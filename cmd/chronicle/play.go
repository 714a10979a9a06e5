package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/internal/llm"
	"github.com/scrypster/chronicle/internal/player"
)

const narratorID = "narrator"

func newPlayCommand(a *app) *cobra.Command {
	var playerID, session string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the campaign interactively with the narrator",
		Long: strings.TrimSpace(`Start an interactive session. Each line you type is recorded, the most
significant memories and the most urgent narrative event are handed to the
narrator, and its reply is recorded too. The campaign is saved after every
turn.

Commands: /events, /resolve <event-id> <outcome>, /dismiss <event-id> [reason],
/quit.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.gen == nil {
				return errors.New("play needs an LLM provider; set llm.provider")
			}
			if session == "" {
				session = time.Now().UTC().Format("20060102T150405")
			}
			if playerID == "" {
				playerID = player.Detect()
			}
			c, err := a.campaign(cmd.Context())
			if err != nil {
				return err
			}
			return a.playLoop(cmd.Context(), c, playerID, session)
		},
	}
	cmd.Flags().StringVarP(&playerID, "player", "p", "", "Owner id of your turns (default: $CHRONICLE_PLAYER or your user name)")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id (default: start time)")
	return cmd
}

func (a *app) playLoop(ctx context.Context, c *campaign.Campaign, playerID, session string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".chronicle_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(a.out, "Campaign %s, session %s. /quit to leave.\n\n", c.ID(), session)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == "/quit" || input == "/exit":
			return nil
		case strings.HasPrefix(input, "/"):
			if err := a.playCommand(ctx, c, input); err != nil {
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
			continue
		}

		reply, err := a.turn(ctx, c, playerID, session, input)
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(a.out, "\n%s\n\n", reply)
		if err := a.registry.Save(ctx, c.ID()); err != nil {
			log.Error("failed to save campaign", "campaign", c.ID(), "err", err)
		}
	}
}

// turn records the player's input, asks the narrator for a reply with the
// recalled context and the top pending event, and records the reply.
func (a *app) turn(ctx context.Context, c *campaign.Campaign, playerID, session, input string) (string, error) {
	if _, err := c.RecordNarration(ctx, input, playerID, session); err != nil {
		return "", err
	}
	recalled, err := c.RecallContext(engine.RecallQuery{Text: input}, 0)
	if err != nil {
		return "", err
	}
	res, err := c.PendingEvents(ctx, 1)
	if err != nil {
		return "", err
	}
	var beats []string
	for _, ev := range res.Events {
		beats = append(beats, ev.Title+": "+ev.Description)
	}

	reply, err := a.gen.Complete(ctx, llm.NarrationPrompt(recalled.Context.Text, beats, input))
	if err != nil {
		return "", fmt.Errorf("narrator: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errors.New("narrator returned nothing")
	}
	if _, err := c.RecordNarration(ctx, reply, narratorID, session); err != nil {
		log.Warn("failed to record narration", "err", err)
	}
	return reply, nil
}

func (a *app) playCommand(ctx context.Context, c *campaign.Campaign, input string) error {
	fields := strings.Fields(input)
	rest := strings.Join(fields[min(2, len(fields)):], " ")
	switch fields[0] {
	case "/events":
		res, err := c.PendingEvents(ctx, 0)
		if err != nil {
			return err
		}
		for _, ev := range res.Events {
			fmt.Fprintf(a.out, "%s [%s/%s] %s\n", ev.ID, ev.Priority, ev.Type, ev.Title)
		}
		return nil
	case "/resolve", "/dismiss":
		if len(fields) < 2 {
			return fmt.Errorf("usage: %s <event-id> ...", fields[0])
		}
		var err error
		if fields[0] == "/resolve" {
			_, err = c.ResolveEvent(fields[1], rest)
		} else {
			err = c.DismissEvent(fields[1], rest)
		}
		if err != nil {
			return err
		}
		ev, err := c.Event(fields[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s %s\n", ev.ID, ev.Status)
		return a.registry.Save(ctx, c.ID())
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}

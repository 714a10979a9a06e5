package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/scrypster/chronicle/pkg/types"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) (any, error)

// tool adapts a typed Server method to a toolHandler.
func tool[A, R any](fn func(*Server, context.Context, A) (R, error)) toolHandler {
	return func(ctx context.Context, s *Server, raw json.RawMessage) (any, error) {
		var args A
		if err := unmarshalParams(raw, &args); err != nil {
			return nil, err
		}
		return fn(s, ctx, args)
	}
}

var tools = map[string]toolHandler{
	"record_memory":      tool((*Server).RecordMemory),
	"recall_context":     tool((*Server).RecallContext),
	"narrative_snapshot": tool((*Server).Snapshot),
	"pending_events":     tool((*Server).PendingEvents),
	"resolve_event":      tool((*Server).ResolveEvent),
	"dismiss_event":      tool((*Server).DismissEvent),
	"create_arc":         tool((*Server).CreateArc),
	"add_milestone":      tool((*Server).AddMilestone),
	"open_thread":        tool((*Server).OpenThread),
	"update_thread":      tool((*Server).UpdateThread),
	"resolve_thread":     tool((*Server).ResolveThread),
	"maintain":           tool((*Server).Maintain),
}

type schema = map[string]any

func str(desc string) schema     { return schema{"type": "string", "description": desc} }
func integer(desc string) schema { return schema{"type": "integer", "description": desc} }
func number(desc string) schema  { return schema{"type": "number", "description": desc} }
func list(desc string) schema {
	return schema{"type": "array", "items": schema{"type": "string"}, "description": desc}
}

// oneOf renders the allowed values of an enum for a description.
func oneOf[T ~string](vals []T) string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return "One of: " + strings.Join(out, ", ")
}

func object(required []string, props schema) schema {
	props["campaign_id"] = str("Campaign to work on (default: the server's campaign)")
	s := schema{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// toolList returns the tool definitions in a stable order.
func toolList() []MCPTool {
	return []MCPTool{
		{
			Name: "record_memory",
			Description: "Record something that happened in the story. Without emotional_weight the kind, weight and " +
				"tags are inferred from the content; with it the memory is stored exactly as given.",
			InputSchema: object([]string{"content"}, schema{
				"content":          str("What happened (required)"),
				"owner_id":         str("Character or player the memory belongs to"),
				"session_id":       str("Play session (default: this server session)"),
				"emotional_weight": number("Emotional weight in [0,1]; disables inference"),
				"kind":             str(oneOf(types.ValidMemoryKinds)),
				"emotions":         list("Emotional tags, e.g. fear, grief"),
				"themes":           list("Thematic tags, e.g. betrayal, loyalty"),
			}),
		},
		{
			Name: "recall_context",
			Description: "Recall the most significant matching memories and render them as a context block for " +
				"narration within a token budget. Recalled memories are reinforced.",
			InputSchema: object(nil, schema{
				"query":      str("Free text matched against memory content and tags"),
				"owner_id":   str("Only memories of this owner"),
				"session_id": str("Only memories of this session"),
				"emotion":    str("Only memories with this emotional tag"),
				"themes":     list("Only memories with one of these themes"),
				"layer":      str(oneOf(types.ValidLayers)),
				"since":      str("RFC-3339 lower bound for created_at"),
				"limit":      integer("Max memories (default from config)"),
				"budget":     integer("Token budget of the context block (default from config)"),
			}),
		},
		{
			Name:        "narrative_snapshot",
			Description: "Read-only summary of the story: active arcs, open threads, recent significant memories and the emotional trend.",
			InputSchema: object(nil, schema{}),
		},
		{
			Name: "pending_events",
			Description: "Suggest the next narrative events, most urgent first. There is always at least one; " +
				"warnings explain weak suggestions.",
			InputSchema: object(nil, schema{
				"max": integer("Max events (default from config)"),
			}),
		},
		{
			Name:        "resolve_event",
			Description: "Mark a pending event as played, with what came of it.",
			InputSchema: object([]string{"event_id"}, schema{
				"event_id": str("Event id (required)"),
				"outcome":  str("What happened"),
			}),
		},
		{
			Name:        "dismiss_event",
			Description: "Reject a pending event.",
			InputSchema: object([]string{"event_id"}, schema{
				"event_id": str("Event id (required)"),
				"reason":   str("Why it was rejected"),
			}),
		},
		{
			Name:        "create_arc",
			Description: "Start a character arc.",
			InputSchema: object([]string{"character_id", "type"}, schema{
				"character_id": str("Character (required)"),
				"type":         str(oneOf(types.ValidArcTypes)),
				"description":  str("What the arc is about"),
			}),
		},
		{
			Name:        "add_milestone",
			Description: "Add a milestone to a character arc.",
			InputSchema: object([]string{"arc_id", "title"}, schema{
				"arc_id":      str("Arc id (required)"),
				"title":       str("Milestone title (required)"),
				"description": str("Details"),
				"memory_ids":  list("Memories that evidence the milestone"),
				"completion":  number("Completion in [0,1]"),
			}),
		},
		{
			Name:        "open_thread",
			Description: "Open a plot thread.",
			InputSchema: object([]string{"name", "type", "priority"}, schema{
				"name":          str("Thread name (required)"),
				"type":          str(oneOf(types.ValidThreadTypes)),
				"description":   str("What the thread is about"),
				"priority":      integer("Priority 1 to 10 (required)"),
				"character_ids": list("Characters involved"),
			}),
		},
		{
			Name:        "update_thread",
			Description: "Record a development on a plot thread, optionally revising its priority.",
			InputSchema: object([]string{"thread_id", "title"}, schema{
				"thread_id":   str("Thread id (required)"),
				"title":       str("Development (required)"),
				"description": str("Details"),
				"memory_ids":  list("Memories behind the development"),
				"priority":    integer("New priority 1 to 10"),
			}),
		},
		{
			Name:        "resolve_thread",
			Description: "Close a plot thread with its resolution.",
			InputSchema: object([]string{"thread_id", "resolution"}, schema{
				"thread_id":  str("Thread id (required)"),
				"resolution": str("How it ended (required)"),
				"memory_ids": list("Memories of the resolution"),
			}),
		},
		{
			Name:        "maintain",
			Description: "Promote, decay and evict memories and expire stale events. Safe to call at any time.",
			InputSchema: object(nil, schema{}),
		},
	}
}

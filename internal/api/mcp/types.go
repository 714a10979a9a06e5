// Package mcp implements a Model Context Protocol server over a campaign
// registry. It exposes the campaign operations as JSON-RPC 2.0 tools so a
// language-model narrator can record turns, recall context and work the
// orchestration queue itself.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/scrypster/chronicle/internal/engine"
)

// stringList accepts a JSON array, a JSON-encoded array inside a string, or
// a comma-separated string. Some MCP clients send array arguments in the
// string forms.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unrecognised forms are ignored rather than failing the call.
		return nil
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			*l = list
		}
		return nil
	}
	*l = nil
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// RecordMemoryArgs contains arguments for the record_memory tool.
type RecordMemoryArgs struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Content    string `json:"content"` // required
	OwnerID    string `json:"owner_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	// EmotionalWeight stores the memory as given. Without it kind, weight
	// and tags are inferred from Content.
	EmotionalWeight *float64   `json:"emotional_weight,omitempty"`
	Kind            string     `json:"kind,omitempty"`
	Emotions        stringList `json:"emotions,omitempty"`
	Themes          stringList `json:"themes,omitempty"`
}

// RecordMemoryResult contains the result of recording a memory.
type RecordMemoryResult struct {
	MemoryID string `json:"memory_id"`
	// Facts is set when the memory was inferred from narration.
	Facts *engine.Facts `json:"facts,omitempty"`
}

// RecallContextArgs contains arguments for the recall_context tool.
type RecallContextArgs struct {
	CampaignID string     `json:"campaign_id,omitempty"`
	Query      string     `json:"query,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Emotion    string     `json:"emotion,omitempty"`
	Themes     stringList `json:"themes,omitempty"`
	Layer      string     `json:"layer,omitempty"`
	Since      string     `json:"since,omitempty"` // RFC-3339
	Limit      int        `json:"limit,omitempty"`
	Budget     int        `json:"budget,omitempty"` // tokens; 0 uses the configured budget
}

// CampaignArgs is used by tools that only need the campaign.
type CampaignArgs struct {
	CampaignID string `json:"campaign_id,omitempty"`
}

// PendingEventsArgs contains arguments for the pending_events tool.
type PendingEventsArgs struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Max        int    `json:"max,omitempty"`
}

// ResolveEventArgs contains arguments for the resolve_event tool.
type ResolveEventArgs struct {
	CampaignID string `json:"campaign_id,omitempty"`
	EventID    string `json:"event_id"`
	Outcome    string `json:"outcome"`
}

// DismissEventArgs contains arguments for the dismiss_event tool.
type DismissEventArgs struct {
	CampaignID string `json:"campaign_id,omitempty"`
	EventID    string `json:"event_id"`
	Reason     string `json:"reason,omitempty"`
}

// EventStatusResult reports the state of an event after a tool changed it.
type EventStatusResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// CreateArcArgs contains arguments for the create_arc tool.
type CreateArcArgs struct {
	CampaignID  string `json:"campaign_id,omitempty"`
	CharacterID string `json:"character_id"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// AddMilestoneArgs contains arguments for the add_milestone tool.
type AddMilestoneArgs struct {
	CampaignID  string     `json:"campaign_id,omitempty"`
	ArcID       string     `json:"arc_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	MemoryIDs   stringList `json:"memory_ids,omitempty"`
	Completion  float64    `json:"completion,omitempty"`
}

// OpenThreadArgs contains arguments for the open_thread tool.
type OpenThreadArgs struct {
	CampaignID   string     `json:"campaign_id,omitempty"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Description  string     `json:"description,omitempty"`
	Priority     int        `json:"priority"`
	CharacterIDs stringList `json:"character_ids,omitempty"`
}

// UpdateThreadArgs contains arguments for the update_thread tool.
type UpdateThreadArgs struct {
	CampaignID  string     `json:"campaign_id,omitempty"`
	ThreadID    string     `json:"thread_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	MemoryIDs   stringList `json:"memory_ids,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
}

// ResolveThreadArgs contains arguments for the resolve_thread tool.
type ResolveThreadArgs struct {
	CampaignID string     `json:"campaign_id,omitempty"`
	ThreadID   string     `json:"thread_id"`
	Resolution string     `json:"resolution"`
	MemoryIDs  stringList `json:"memory_ids,omitempty"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"` // Must be "2.0"
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"` // string, number, or null
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      any           `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
	Instructions    string                `json:"instructions,omitempty"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}

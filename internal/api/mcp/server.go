package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/scrypster/chronicle/internal/campaign"
	"github.com/scrypster/chronicle/internal/engine"
	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/internal/orchestration"
	"github.com/scrypster/chronicle/pkg/types"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Server implements the Model Context Protocol for chronicle. Every tool
// works on one campaign of the registry; mutating tools save the campaign
// before they return.
type Server struct {
	registry        *campaign.Registry
	defaultCampaign string
	version         string
	sessionID       string
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithDefaultCampaign sets the campaign used when a tool call has no
// campaign_id.
func WithDefaultCampaign(id string) ServerOption {
	return func(s *Server) {
		s.defaultCampaign = id
	}
}

// WithVersion sets the version reported in the initialize handshake.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a server over registry.
func NewServer(registry *campaign.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry:  registry,
		version:   "dev",
		sessionID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info("mcp session started", "session", s.sessionID, "default_campaign", s.defaultCampaign)
	return s
}

// SessionID is generated once per server and used for memories recorded
// without a session_id.
func (s *Server) SessionID() string { return s.sessionID }

// HandleRequest processes one JSON-RPC 2.0 request. It returns nil for
// notifications, which get no response.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil, nil
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case "initialize":
		result = s.initialize()
	case "initialized", "ping":
		result = map[string]any{}
	case "tools/list":
		result = MCPToolsListResult{Tools: toolList()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		// Tools can also be called as native methods.
		h, ok := tools[req.Method]
		if !ok {
			return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
		}
		result, err = h(ctx, s, req.Params)
	}

	if err != nil {
		code := ErrCodeServerError
		if errors.Is(err, errInvalidParams) || errors.Is(err, types.ErrValidation) {
			code = ErrCodeInvalidParams
		}
		return s.errorResponse(req.ID, code, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) initialize() MCPInitializeResult {
	return MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
		ServerInfo:      MCPServerInfo{Name: "chronicle", Version: s.version},
		Instructions: "Record every story beat with record_memory, call recall_context before narrating, " +
			"and take the top event from pending_events as the next beat. Resolve or dismiss events once played.",
	}
}

// handleToolsCall dispatches a tools/call request and wraps the result in
// the MCP content envelope. Tool failures are reported in the envelope, not
// as JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p MCPToolCallParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	h, ok := tools[p.Name]
	if !ok {
		return toolError(fmt.Errorf("unknown tool: %s", p.Name)), nil
	}
	result, err := h(ctx, s, p.Arguments)
	if err != nil {
		return toolError(err), nil
	}
	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(text)}}}, nil
}

func toolError(err error) *MCPToolCallResult {
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}

// campaign resolves the campaign a call addresses.
func (s *Server) campaign(ctx context.Context, id string) (*campaign.Campaign, error) {
	if id == "" {
		id = s.defaultCampaign
	}
	if id == "" {
		return nil, types.Invalid("campaign_id", "is required")
	}
	return s.registry.Get(ctx, id)
}

func (s *Server) save(ctx context.Context, c *campaign.Campaign) error {
	return s.registry.Save(ctx, c.ID())
}

// RecordMemory records one memory. Without an emotional weight the content
// is treated as narration and its facts are inferred.
func (s *Server) RecordMemory(ctx context.Context, args RecordMemoryArgs) (*RecordMemoryResult, error) {
	if strings.TrimSpace(args.Content) == "" {
		return nil, types.Invalid("content", "is required")
	}
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	session := args.SessionID
	if session == "" {
		session = s.sessionID
	}

	var res RecordMemoryResult
	if args.EmotionalWeight == nil {
		n, err := c.RecordNarration(ctx, args.Content, args.OwnerID, session)
		if err != nil {
			return nil, err
		}
		res = RecordMemoryResult{MemoryID: n.MemoryID, Facts: &n.Facts}
	} else {
		kind, err := types.ParseMemoryKind(args.Kind)
		if err != nil {
			return nil, err
		}
		id, err := c.RecordEvent(types.NewRecord{
			Content:         args.Content,
			Kind:            kind,
			OwnerID:         args.OwnerID,
			SessionID:       session,
			EmotionalWeight: *args.EmotionalWeight,
			EmotionalTags:   args.Emotions,
			ThematicTags:    args.Themes,
		})
		if err != nil {
			return nil, err
		}
		res = RecordMemoryResult{MemoryID: id}
	}
	return &res, s.save(ctx, c)
}

// RecallContext recalls memories and renders the narrator context block.
// Recall reinforces the returned memories, so the campaign is saved.
func (s *Server) RecallContext(ctx context.Context, args RecallContextArgs) (*campaign.RecallResult, error) {
	q := engine.RecallQuery{
		Text:      args.Query,
		OwnerID:   args.OwnerID,
		SessionID: args.SessionID,
		Emotion:   args.Emotion,
		Themes:    args.Themes,
		Layer:     types.Layer(args.Layer),
		Limit:     args.Limit,
	}
	if args.Since != "" {
		since, err := time.Parse(time.RFC3339, args.Since)
		if err != nil {
			return nil, types.Invalid("since", "must be RFC-3339: %v", err)
		}
		q.Since = since
	}
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	res, err := c.RecallContext(q, args.Budget)
	if err != nil {
		return nil, err
	}
	return &res, s.save(ctx, c)
}

// Snapshot returns the read-only narrative snapshot.
func (s *Server) Snapshot(ctx context.Context, args CampaignArgs) (*narrative.Snapshot, error) {
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// PendingEvents suggests up to Max narrative events.
func (s *Server) PendingEvents(ctx context.Context, args PendingEventsArgs) (*orchestration.Result, error) {
	if args.Max < 0 {
		return nil, types.Invalid("max", "must be >= 0, got %d", args.Max)
	}
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	res, err := c.PendingEvents(ctx, args.Max)
	if err != nil {
		return nil, err
	}
	return &res, s.save(ctx, c)
}

// ResolveEvent marks an event as played with the given outcome.
func (s *Server) ResolveEvent(ctx context.Context, args ResolveEventArgs) (*EventStatusResult, error) {
	if args.EventID == "" {
		return nil, types.Invalid("event_id", "is required")
	}
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	if _, err := c.ResolveEvent(args.EventID, args.Outcome); err != nil {
		return nil, err
	}
	return s.eventStatus(ctx, c, args.EventID)
}

// DismissEvent rejects an event.
func (s *Server) DismissEvent(ctx context.Context, args DismissEventArgs) (*EventStatusResult, error) {
	if args.EventID == "" {
		return nil, types.Invalid("event_id", "is required")
	}
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := c.DismissEvent(args.EventID, args.Reason); err != nil {
		return nil, err
	}
	return s.eventStatus(ctx, c, args.EventID)
}

func (s *Server) eventStatus(ctx context.Context, c *campaign.Campaign, id string) (*EventStatusResult, error) {
	ev, err := c.Event(id)
	if err != nil {
		return nil, err
	}
	return &EventStatusResult{EventID: ev.ID, Status: string(ev.Status)}, s.save(ctx, c)
}

// CreateArc starts a character arc.
func (s *Server) CreateArc(ctx context.Context, args CreateArcArgs) (*types.CharacterArc, error) {
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	arc, err := c.CreateArc(narrative.NewArc{
		CharacterID: args.CharacterID,
		Type:        types.ArcType(args.Type),
		Description: args.Description,
	})
	if err != nil {
		return nil, err
	}
	return &arc, s.save(ctx, c)
}

// AddMilestone appends a milestone to an arc.
func (s *Server) AddMilestone(ctx context.Context, args AddMilestoneArgs) (*types.CharacterArc, error) {
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	arc, err := c.AddMilestone(args.ArcID, narrative.NewMilestone{
		Title:       args.Title,
		Description: args.Description,
		MemoryIDs:   args.MemoryIDs,
		Completion:  args.Completion,
	})
	if err != nil {
		return nil, err
	}
	return &arc, s.save(ctx, c)
}

// OpenThread opens a plot thread.
func (s *Server) OpenThread(ctx context.Context, args OpenThreadArgs) (*types.PlotThread, error) {
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	th, err := c.OpenThread(narrative.NewThread{
		Name:         args.Name,
		Type:         types.ThreadType(args.Type),
		Description:  args.Description,
		Priority:     args.Priority,
		CharacterIDs: args.CharacterIDs,
	})
	if err != nil {
		return nil, err
	}
	return &th, s.save(ctx, c)
}

// UpdateThread records a development on a thread.
func (s *Server) UpdateThread(ctx context.Context, args UpdateThreadArgs) (*types.PlotThread, error) {
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	th, err := c.AddThreadUpdate(args.ThreadID, narrative.NewUpdate{
		Title:       args.Title,
		Description: args.Description,
		MemoryIDs:   args.MemoryIDs,
		Priority:    args.Priority,
	})
	if err != nil {
		return nil, err
	}
	return &th, s.save(ctx, c)
}

// ResolveThread closes a thread with a resolution.
func (s *Server) ResolveThread(ctx context.Context, args ResolveThreadArgs) (*types.PlotThread, error) {
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	th, err := c.ResolveThread(args.ThreadID, args.Resolution, args.MemoryIDs)
	if err != nil {
		return nil, err
	}
	return &th, s.save(ctx, c)
}

// Maintain runs a maintenance pass on the campaign.
func (s *Server) Maintain(ctx context.Context, args CampaignArgs) (*campaign.MaintenanceResult, error) {
	c, err := s.campaign(ctx, args.CampaignID)
	if err != nil {
		return nil, err
	}
	res := c.Maintain()
	return &res, s.save(ctx, c)
}

var errInvalidParams = errors.New("invalid params")

// unmarshalParams decodes params into dest. Absent params decode as {}.
func unmarshalParams(params json.RawMessage, dest any) error {
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

func (s *Server) successResponse(id, result any) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id any, code int, message string, data any) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
}

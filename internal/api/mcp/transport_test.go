package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/api/mcp"
)

func TestStdioTransport_Serve(t *testing.T) {
	s, _ := newServer(t, mcp.WithDefaultCampaign("north"))
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"record_memory","arguments":{"content":"the tower fell","emotional_weight":0.8}}}`,
		`{"jsonrpc":"2.0","id":"three","method":"nope"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, mcp.NewStdioTransport(s, strings.NewReader(in), &out).Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var ids []any
	for _, line := range lines {
		var resp mcp.JSONRPCResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.Equal(t, "2.0", resp.JSONRPC)
		ids = append(ids, resp.ID)
	}
	assert.Equal(t, []any{1.0, 2.0, "three"}, ids)
	assert.Contains(t, lines[2], `"code":-32601`)
}

func TestStdioTransport_Cancelled(t *testing.T) {
	s, _ := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := mcp.NewStdioTransport(s, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out).Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

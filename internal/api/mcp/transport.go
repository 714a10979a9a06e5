package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// maxLine bounds one request line.
const maxLine = 4 * 1024 * 1024

// StdioTransport serves a Server over line-delimited JSON-RPC 2.0: one
// request per input line, one response per output line. Nothing but
// responses may be written to out, so logging goes to stderr.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
}

// NewStdioTransport constructs a transport reading from in and writing to
// out.
//
//	t := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)
//	err := t.Serve(ctx)
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{server: srv, in: in, out: out}
}

// Serve handles requests in arrival order until in is closed (returning nil)
// or ctx is cancelled (returning ctx.Err()). A cancelled context is noticed
// between requests.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for {
		if err := ctx.Err(); err != nil {
			log.Info("mcp: context cancelled, shutting down")
			return err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("stdin scanner: %w", err)
			}
			log.Info("mcp: stdin closed, shutting down")
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, err := t.server.HandleRequest(ctx, line)
		if err != nil {
			log.Error("mcp: handler error", "err", err)
			resp = internalErrorResponse(line, err)
		}
		if resp == nil {
			continue
		}
		if _, err := fmt.Fprintf(t.out, "%s\n", resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// internalErrorResponse builds an error frame for a request the server could
// not answer, keeping the request id when it can be recovered.
func internalErrorResponse(rawRequest []byte, handlerErr error) []byte {
	var partial struct {
		ID any `json:"id"`
	}
	_ = json.Unmarshal(rawRequest, &partial)

	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      partial.ID,
		Error:   &JSONRPCError{Code: ErrCodeInternalError, Message: handlerErr.Error()},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}

// Package lsp provides the generic protocol client that speaks the
// Language Server Protocol to the analyzer process over its standard
// streams.
//
// The client owns JSON-RPC framing, the initialize/shutdown handshakes,
// and server-initiated notifications. Everything above the wire protocol
// (what the analyzer reports, how diagnostics are interpreted) is owned by
// the server itself.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/dshills/sorbetd/internal/logging"
)

// clientName identifies this integration to the server.
const clientName = "sorbetd"

// Client is a protocol client bound to a single server connection.
// It is safe for concurrent use.
type Client struct {
	conn   *jsonrpc2.Conn
	logger *logging.Logger

	mu          sync.RWMutex
	diagnostics map[protocol.DocumentURI][]protocol.Diagnostic

	initialized atomic.Bool
	closed      atomic.Bool
}

// NewClient creates a client over the given stream, typically the spawned
// process's stdout/stdin pair. The read loop starts immediately.
func NewClient(stream io.ReadWriteCloser, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NullLogger
	}

	c := &Client{
		logger:      logger,
		diagnostics: make(map[protocol.DocumentURI][]protocol.Diagnostic),
	}

	handler := jsonrpc2.HandlerWithError(c.handle)
	buffered := jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(context.Background(), buffered, handler)

	return c
}

// handle processes server-initiated messages. Requests are not part of
// this integration's surface; only notifications are consumed.
func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if !req.Notif {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
	}

	switch req.Method {
	case "textDocument/publishDiagnostics":
		var params protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}
		c.mu.Lock()
		if len(params.Diagnostics) == 0 {
			delete(c.diagnostics, params.URI)
		} else {
			c.diagnostics[params.URI] = params.Diagnostics
		}
		c.mu.Unlock()
		return nil, nil

	case "window/logMessage":
		var params protocol.LogMessageParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}
		c.logger.Debug("server: %s", params.Message)
		return nil, nil

	case "window/showMessage":
		var params protocol.ShowMessageParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, err
		}
		c.logger.Info("server: %s", params.Message)
		return nil, nil

	default:
		return nil, nil
	}
}

// Initialize performs the LSP initialize handshake for the given workspace
// root and sends the initialized notification.
func (c *Client) Initialize(ctx context.Context, rootPath string) (*protocol.InitializeResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.initialized.Load() {
		return nil, ErrAlreadyInitialized
	}

	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		RootURI:   protocol.DocumentURI(FilePathToURI(rootPath)),
		ClientInfo: &protocol.ClientInfo{
			Name:    clientName,
			Version: "0.1",
		},
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{},
			},
			Workspace: &protocol.WorkspaceClientCapabilities{
				Symbol: &protocol.WorkspaceClientCapabilitiesSymbol{},
			},
		},
	}

	var result protocol.InitializeResult
	if err := c.conn.Call(ctx, "initialize", params, &result); err != nil {
		return nil, err
	}
	if err := c.conn.Notify(ctx, "initialized", &protocol.InitializedParams{}); err != nil {
		return nil, err
	}

	c.initialized.Store(true)
	return &result, nil
}

// Shutdown performs the graceful shutdown handshake: the shutdown request,
// the exit notification, then connection close. It is idempotent.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	// Best effort; a dead server fails both and close still proceeds.
	_ = c.conn.Call(ctx, "shutdown", nil, nil)
	_ = c.conn.Notify(ctx, "exit", nil)

	// A crashed server closes the connection from underneath us; there is
	// nothing left to shut down and that is not a teardown failure.
	if err := c.conn.Close(); err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
		return err
	}
	return nil
}

// NotifyWatchedFilesChanged forwards file system change events to the
// server's synchronization channel.
func (c *Client) NotifyWatchedFilesChanged(ctx context.Context, changes []*protocol.FileEvent) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if len(changes) == 0 {
		return nil
	}
	return c.conn.Notify(ctx, "workspace/didChangeWatchedFiles", &protocol.DidChangeWatchedFilesParams{
		Changes: changes,
	})
}

// Diagnostics returns the last published diagnostics for a document.
func (c *Client) Diagnostics(uri protocol.DocumentURI) []protocol.Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.diagnostics[uri]
}

// DisconnectNotify returns a channel that is closed when the underlying
// connection disconnects.
func (c *Client) DisconnectNotify() <-chan struct{} {
	return c.conn.DisconnectNotify()
}

// IsClosed reports whether Shutdown has been called.
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

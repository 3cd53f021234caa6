package lsp

import "errors"

// Standard errors returned by the protocol client.
var (
	// ErrClientClosed indicates the client has been shut down.
	ErrClientClosed = errors.New("lsp client closed")

	// ErrAlreadyInitialized indicates Initialize was called twice.
	ErrAlreadyInitialized = errors.New("lsp client already initialized")
)

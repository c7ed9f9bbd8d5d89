// Package tracing wires optional Langfuse tracing into the eino callback
// chain. Generation calls made through the dispatcher are traced when the
// Langfuse keys are present in the environment.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is used when LANGFUSE_HOST is unset (a local Langfuse dev
// instance).
const defaultHost = "http://localhost:3000"

// Setup builds the Langfuse callback handler from LANGFUSE_PUBLIC_KEY,
// LANGFUSE_SECRET_KEY, and LANGFUSE_HOST. The returned flush function must
// run before process exit so buffered traces are delivered. When the keys
// are absent the third return value is false and tracing stays off.
func Setup() (callbacks.Handler, func(), bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	return handler, flusher, true
}

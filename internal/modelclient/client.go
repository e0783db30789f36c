// Package modelclient declares the language-model streaming client
// interface: it accepts a message list plus tool schemas and returns a
// stream of assistant text, tool-call requests, and a finish reason. The
// execution engine depends only on this interface; a concrete
// HTTP-streaming implementation is external to this module. Package
// modelclient also ships an in-memory fake used by tests and the CLI.
package modelclient

import (
	"context"
	"encoding/json"
)

// FinishReason classifies why a Stream ended.
type FinishReason string

const (
	// FinishStop indicates the model ended its turn normally.
	FinishStop FinishReason = "stop"
	// FinishError indicates the stream ended because of an upstream error.
	FinishError FinishReason = "error"
	// FinishCancelled indicates the stream was torn down by context
	// cancellation (Engine.Abort).
	FinishCancelled FinishReason = "cancelled"
)

// Message is one entry in the conversation history sent to the model.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolName   string
}

// ToolSchema describes one callable tool presented to the model.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is one tool invocation requested by the model mid-stream.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// StepChunk is one increment of model output: zero-or-more characters of
// assistant text, and/or zero-or-more tool calls that complete this step.
type StepChunk struct {
	TextDelta string
	ToolCalls []ToolCall
	// Done is true on the final chunk of the stream; Reason is only
	// meaningful when Done is true.
	Done   bool
	Reason FinishReason
	Err    error
}

// Stream yields StepChunks until Done is true or ctx is cancelled.
type Stream interface {
	// Next blocks for the next chunk. It returns ok=false once the stream
	// is exhausted (after the Done chunk has already been delivered).
	Next(ctx context.Context) (StepChunk, bool)
	// Close releases resources associated with the stream.
	Close() error
}

// Client opens a streaming model call over a message history and tool
// schema.
type Client interface {
	Stream(ctx context.Context, history []Message, tools []ToolSchema) (Stream, error)
}

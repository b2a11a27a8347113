package ai

import (
	"context"
	"encoding/json"
)

// Tool is the uniform tool-invocation contract. Implementations declare a
// JSON Schema for their input and execute against decoded input of that shape.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns the JSON Schema describing the tool input.
	InputSchema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (any, error)
}

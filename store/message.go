package store

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates the Part union.
type PartType string

const (
	PartTypeText           PartType = "text"
	PartTypeReasoning      PartType = "reasoning"
	PartTypeToolInvocation PartType = "tool-invocation"
	PartTypeToolResult     PartType = "tool-result"
	PartTypeFile           PartType = "file"
)

// ToolState tells consumers how far a tool part has progressed.
// Rendering switches on the state, never on a synthesized type tag.
type ToolState string

const (
	ToolStateInputAvailable  ToolState = "input-available"
	ToolStateOutputAvailable ToolState = "output-available"
)

// ToolPart carries one tool invocation or its result. A tool-result part's
// CallID always corresponds to a tool-invocation part with the same CallID
// earlier in the same message (possibly a synthesized fallback).
type ToolPart struct {
	ToolName string         `json:"toolName"`
	CallID   string         `json:"callId"`
	State    ToolState      `json:"state"`
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
}

// FilePart references an uploaded file carried by a message.
type FilePart struct {
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Part is one typed fragment of a message. Exactly one payload field is set
// depending on Type: Text for text/reasoning, Tool for tool-invocation and
// tool-result, File for file. Ordering within a message is significant and is
// preserved by the store.
type Part struct {
	Type PartType  `json:"type"`
	Text string    `json:"text,omitempty"`
	Tool *ToolPart `json:"tool,omitempty"`
	File *FilePart `json:"file,omitempty"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// NewReasoningPart creates a reasoning part.
func NewReasoningPart(text string) Part {
	return Part{Type: PartTypeReasoning, Text: text}
}

// NewToolInvocationPart creates a tool-invocation part in state input-available.
func NewToolInvocationPart(toolName, callID string, input map[string]any) Part {
	return Part{Type: PartTypeToolInvocation, Tool: &ToolPart{
		ToolName: toolName,
		CallID:   callID,
		State:    ToolStateInputAvailable,
		Input:    input,
	}}
}

// NewToolResultPart creates a tool-result part in state output-available.
func NewToolResultPart(toolName, callID string, input, output map[string]any) Part {
	return Part{Type: PartTypeToolResult, Tool: &ToolPart{
		ToolName: toolName,
		CallID:   callID,
		State:    ToolStateOutputAvailable,
		Input:    input,
		Output:   output,
	}}
}

// NewFilePart creates a file part.
func NewFilePart(url, name, mediaType string) Part {
	return Part{Type: PartTypeFile, File: &FilePart{URL: url, Name: name, MediaType: mediaType}}
}

// AttachmentRef points at an uploaded file referenced by a message.
// Owned by the message; never mutated after creation.
type AttachmentRef struct {
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// Message belongs to exactly one conversation and is append-only: it is never
// mutated after creation. The ID is caller-supplied for user messages and
// generated for assistant messages.
type Message struct {
	ID              string
	ConversationUID string
	Role            Role
	Parts           []Part
	Attachments     []AttachmentRef
	CreatedTs       int64
}

type FindMessage struct {
	ConversationUID *string
	ID              *string
}

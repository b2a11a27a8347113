package chat

// DeltaType discriminates the incremental update events streamed to the
// client. Consumers ignore types they do not recognize, so new types can be
// added without breaking older clients.
type DeltaType string

const (
	DeltaTypeID         DeltaType = "id"
	DeltaTypeTitle      DeltaType = "title"
	DeltaTypeKind       DeltaType = "kind"
	DeltaTypeClear      DeltaType = "clear"
	DeltaTypeFinish     DeltaType = "finish"
	DeltaTypeText       DeltaType = "text-delta"
	DeltaTypeCode       DeltaType = "code-delta"
	DeltaTypeSheet      DeltaType = "sheet-delta"
	DeltaTypeImage      DeltaType = "image-delta"
	DeltaTypeSuggestion DeltaType = "suggestion"
	// DeltaTypeReasoning carries incremental model reasoning text.
	DeltaTypeReasoning DeltaType = "reasoning-delta"
	// DeltaTypeError is a terminal in-stream error marker. It lets the client
	// render a recoverable error state instead of seeing an abrupt close.
	DeltaTypeError DeltaType = "error"
)

// StreamDelta is one incremental update event on the wire. Content is a plain
// string for most types and a structured object for suggestion deltas.
type StreamDelta struct {
	Type    DeltaType `json:"type"`
	Content any       `json:"content,omitempty"`
}

// ContentString returns the delta content as a string when it is one.
func (d *StreamDelta) ContentString() string {
	if s, ok := d.Content.(string); ok {
		return s
	}
	return ""
}

// DeltaSink receives stream deltas as they are produced. Implementations must
// flush each delta to the transport immediately; the pipeline never buffers
// beyond what the transport requires.
type DeltaSink interface {
	WriteDelta(delta StreamDelta) error
}

// DeltaSinkFunc adapts a function to the DeltaSink interface.
type DeltaSinkFunc func(delta StreamDelta) error

func (f DeltaSinkFunc) WriteDelta(delta StreamDelta) error {
	return f(delta)
}

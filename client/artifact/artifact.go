// Package artifact consumes chat stream deltas on the client side and
// maintains the derived artifact state: a document the assistant builds up
// incrementally while the conversation streams.
package artifact

import (
	"runtime"
	"sync"

	"github.com/parleychat/parley/server/router/api/v1/chat"
)

// Kind identifies what an artifact contains.
type Kind string

const (
	KindText  Kind = "text"
	KindCode  Kind = "code"
	KindSheet Kind = "sheet"
	KindImage Kind = "image"
)

// Status tracks whether the artifact is still receiving content.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusIdle      Status = "idle"
)

// Artifact is the client-visible document state derived from the delta
// stream.
type Artifact struct {
	ID      string
	Kind    Kind
	Title   string
	Content string
	Status  Status
}

// batchSize is how many deltas one processing slice consumes before yielding.
const batchSize = 10

// Consumer folds an append-only delta stream into artifact state. Deltas are
// ingested as they arrive and processed in bounded slices, yielding between
// slices so a large burst cannot starve the caller. Ingest and Process are
// safe for concurrent use; only one processing loop runs at a time.
type Consumer struct {
	mu sync.Mutex

	deltas             []chat.StreamDelta
	lastProcessedIndex int
	processing         bool

	artifact    Artifact
	suggestions []any

	// yield runs between processing slices. Defaults to runtime.Gosched.
	yield func()
}

func NewConsumer() *Consumer {
	return &Consumer{
		lastProcessedIndex: -1,
		artifact:           Artifact{Status: StatusIdle},
		yield:              runtime.Gosched,
	}
}

// Ingest appends deltas to the stream and processes everything outstanding.
func (c *Consumer) Ingest(deltas ...chat.StreamDelta) {
	c.mu.Lock()
	c.deltas = append(c.deltas, deltas...)
	c.mu.Unlock()
	c.Process()
}

// Process drains unprocessed deltas in slices of at most batchSize. If a
// processing loop is already running, the call returns immediately; the
// running loop picks up any deltas ingested meanwhile.
func (c *Consumer) Process() {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return
	}
	c.processing = true
	c.mu.Unlock()

	for {
		c.mu.Lock()
		start := c.lastProcessedIndex + 1
		if start >= len(c.deltas) {
			c.processing = false
			c.mu.Unlock()
			return
		}
		end := start + batchSize
		if end > len(c.deltas) {
			end = len(c.deltas)
		}
		slice := c.deltas[start:end]
		for _, delta := range slice {
			c.apply(delta)
		}
		c.lastProcessedIndex = end - 1
		c.mu.Unlock()

		c.yield()
	}
}

// apply folds one delta into the artifact state. Unknown delta types are
// ignored so older clients tolerate newer servers. Caller holds c.mu.
func (c *Consumer) apply(delta chat.StreamDelta) {
	switch delta.Type {
	case chat.DeltaTypeID:
		id := delta.ContentString()
		// An id delta after finish, or carrying a different id, starts a new
		// artifact; the frozen one is discarded.
		if c.artifact.Status == StatusIdle || (c.artifact.ID != "" && c.artifact.ID != id) {
			c.artifact = Artifact{}
		}
		c.artifact.ID = id
		c.artifact.Status = StatusStreaming
	case chat.DeltaTypeTitle:
		c.artifact.Title = delta.ContentString()
		c.artifact.Status = StatusStreaming
	case chat.DeltaTypeKind:
		c.artifact.Kind = Kind(delta.ContentString())
		c.artifact.Status = StatusStreaming
	case chat.DeltaTypeClear:
		c.artifact.Content = ""
		c.artifact.Status = StatusStreaming
	case chat.DeltaTypeText:
		c.artifact.Content += delta.ContentString()
		c.artifact.Status = StatusStreaming
	case chat.DeltaTypeCode, chat.DeltaTypeSheet, chat.DeltaTypeImage:
		// These kinds re-render from a full snapshot rather than appending.
		c.artifact.Content = delta.ContentString()
		c.artifact.Status = StatusStreaming
	case chat.DeltaTypeSuggestion:
		c.suggestions = append(c.suggestions, delta.Content)
	case chat.DeltaTypeFinish:
		c.artifact.Status = StatusIdle
	}
}

// Artifact returns a snapshot of the current artifact state.
func (c *Consumer) Artifact() Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// Suggestions returns the suggestions received so far.
func (c *Consumer) Suggestions() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.suggestions))
	copy(out, c.suggestions)
	return out
}

// LastProcessedIndex reports the index of the newest processed delta, or -1
// when nothing has been processed yet.
func (c *Consumer) LastProcessedIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProcessedIndex
}

package format

import (
	"fmt"

	"github.com/dbferry/dbferry/internal/db"
)

// StreamState tracks framing across a fragment sequence.
type StreamState int

const (
	StreamNotStarted StreamState = iota
	StreamStreaming
	StreamClosed
)

// StreamEncoder carries the open/separator/close framing state for a
// streaming export as an explicit state machine, so first-fragment and
// last-fragment tokens are emitted exactly once each.
type StreamEncoder struct {
	codec Codec
	meta  Metadata
	state StreamState
}

// NewStreamEncoder returns a stream encoder for the codec. Formats
// that only support whole-document encoding are rejected here, before
// any work happens.
func NewStreamEncoder(codec Codec, meta Metadata) (*StreamEncoder, error) {
	if _, err := codec.EncodeChunk(nil, meta, true, true); err != nil {
		return nil, fmt.Errorf("format %s: %w", codec.Name(), err)
	}
	return &StreamEncoder{codec: codec, meta: meta}, nil
}

// State returns the current framing state.
func (e *StreamEncoder) State() StreamState {
	return e.state
}

// Encode formats one non-final fragment.
func (e *StreamEncoder) Encode(rows []db.Row) ([]byte, error) {
	if e.state == StreamClosed {
		return nil, fmt.Errorf("stream already closed")
	}

	first := e.state == StreamNotStarted
	out, err := e.codec.EncodeChunk(rows, e.meta, first, false)
	if err != nil {
		return nil, err
	}
	e.state = StreamStreaming
	return out, nil
}

// Close emits the closing framing. Closing a stream that never emitted
// a fragment produces the complete empty document.
func (e *StreamEncoder) Close() ([]byte, error) {
	if e.state == StreamClosed {
		return nil, nil
	}

	first := e.state == StreamNotStarted
	out, err := e.codec.EncodeChunk(nil, e.meta, first, true)
	if err != nil {
		return nil, err
	}
	e.state = StreamClosed
	return out, nil
}

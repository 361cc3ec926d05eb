// Package lifecycle defines the parent<->child control protocol sent
// over each child's stdin/stdout as binary-length framed JSON, and the
// parent<->twin-manager readiness protocol sent as hex-length framed
// JSON over the twin's stdout.
package lifecycle

import (
	"encoding/json"
	"fmt"

	"github.com/gotunnel/gt/internal/descriptor"
	"github.com/gotunnel/gt/internal/framing"
)

// Op tags a lifecycle message.
type Op string

const (
	// Ready is sent by a child once it has finished starting up.
	Ready Op = "Ready"
	// GracefulShutdown is sent by the parent to ask a child to drain
	// and exit.
	GracefulShutdown Op = "GracefulShutdown"
	// GracefulShutdownDone is sent by a child once a GracefulShutdown
	// has completed.
	GracefulShutdownDone Op = "GracefulShutdownDone"
	// Shutdown is sent by the parent to ask a child to exit immediately.
	Shutdown Op = "Shutdown"
	// ShutdownDone is sent by a child once a Shutdown has completed.
	ShutdownDone Op = "ShutdownDone"
	// Reconnect is sent by a child asking the parent to re-spawn a
	// fresh child process for the same descriptor.
	Reconnect Op = "Reconnect"

	// ReadyDone is sent by a twin manager once every descriptor it
	// owns has reported Ready.
	ReadyDone Op = "ReadyDone"
)

// Message is the tagged union exchanged on the parent<->child pipe.
// Descriptor is populated only for the twin-manager's Ready(descriptor)
// variant.
type Message struct {
	Op         Op                     `json:"op"`
	Descriptor *descriptor.Descriptor `json:"descriptor,omitempty"`
}

// Encode marshals m to JSON.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: encoding %s: %w", m.Op, err)
	}
	return b, nil
}

// Decode parses a lifecycle Message from JSON bytes.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("lifecycle: decoding message: %w", err)
	}
	return m, nil
}

// Writer sends framed lifecycle messages.
type Writer struct {
	codec interface{ WriteFrame([]byte) error }
}

// NewBinaryWriter builds a Writer over the binary-length framing used
// for the parent<->child pipe.
func NewBinaryWriter(w *framing.BinaryWriter) *Writer { return &Writer{codec: w} }

// NewHexWriter builds a Writer over the hex-length framing used for
// the parent<->twin-manager readiness stream.
func NewHexWriter(w *framing.HexWriter) *Writer { return &Writer{codec: w} }

// Send encodes and writes m.
func (w *Writer) Send(m Message) error {
	b, err := m.Encode()
	if err != nil {
		return err
	}
	return w.codec.WriteFrame(b)
}

// Reader receives framed lifecycle messages.
type Reader struct {
	codec interface{ ReadFrame() ([]byte, error) }
}

// NewBinaryReader builds a Reader over the binary-length framing.
func NewBinaryReader(r *framing.BinaryReader) *Reader { return &Reader{codec: r} }

// NewHexReader builds a Reader over the hex-length framing.
func NewHexReader(r *framing.HexReader) *Reader { return &Reader{codec: r} }

// Recv reads and decodes the next Message.
func (r *Reader) Recv() (Message, error) {
	b, err := r.codec.ReadFrame()
	if err != nil {
		return Message{}, err
	}
	return Decode(b)
}

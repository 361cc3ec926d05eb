package peer

import (
	"encoding/json"
	"fmt"

	"github.com/gotunnel/gt/internal/framing"
)

// Writer sends framed Op envelopes over the binary-length codec.
type Writer struct {
	w *framing.BinaryWriter
}

// NewWriter wraps w for writing peer ops.
func NewWriter(w *framing.BinaryWriter) *Writer { return &Writer{w: w} }

// Send encodes and writes op.
func (w *Writer) Send(op Op) error {
	b, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("peer: encoding %s op: %w", op.Tag(), err)
	}
	return w.w.WriteFrame(b)
}

// Reader receives framed Op envelopes over the binary-length codec.
type Reader struct {
	r *framing.BinaryReader
}

// NewReader wraps r for reading peer ops.
func NewReader(r *framing.BinaryReader) *Reader { return &Reader{r: r} }

// Recv reads and decodes the next Op.
func (r *Reader) Recv() (Op, error) {
	b, err := r.r.ReadFrame()
	if err != nil {
		return Op{}, err
	}
	var op Op
	if err := json.Unmarshal(b, &op); err != nil {
		return Op{}, fmt.Errorf("peer: decoding op: %w", err)
	}
	return op, nil
}

package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrUnderflow is returned by Reader methods when fewer bytes remain than
// the requested field needs.
var ErrUnderflow = errors.New("wire: buffer underflow")

// Writer appends big-endian fixed-width fields to a growing byte buffer.
// Used to build message payloads (request/have) without hand-indexing
// offsets at every call site.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) PutUint32(v uint32) *Writer {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) PutUint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) PutBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) Bytes() []byte { return w.buf }

// Reader peels big-endian fixed-width fields off the front of a byte slice,
// failing with ErrUnderflow if too little remains.
type Reader struct {
	buf []byte
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Uint32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, ErrUnderflow
	}
	v := binary.BigEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v, nil
}

func (r *Reader) Uint8() (uint8, error) {
	if len(r.buf) < 1 {
		return 0, ErrUnderflow
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v, nil
}

// Remaining returns whatever bytes have not yet been consumed.
func (r *Reader) Remaining() []byte { return r.buf }

package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MessageID identifies a post-handshake message's type (spec §4.3 table).
type MessageID uint8

const (
	MsgChoke         MessageID = 0
	MsgUnchoke       MessageID = 1
	MsgInterested    MessageID = 2
	MsgNotInterested MessageID = 3
	MsgHave          MessageID = 4
	MsgBitfield      MessageID = 5
	MsgRequest       MessageID = 6
	MsgPiece         MessageID = 7
	MsgCancel        MessageID = 8
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Message is a single length-prefixed post-handshake wire message. A nil
// *Message (or one obtained from ReadMessage for a zero-length frame)
// denotes a keep-alive.
type Message struct {
	ID      MessageID
	Payload []byte
}

// Serialize encodes m as a length-prefixed frame. A nil receiver serializes
// to the 4-byte zero-length keep-alive frame.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one length-prefixed frame from r. It returns (nil, nil)
// for a keep-alive (zero-length frame).
func ReadMessage(r io.Reader) (*Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, errors.Wrap(err, "wire: reading message length prefix")
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "wire: reading message payload")
	}
	return &Message{ID: MessageID(payload[0]), Payload: payload[1:]}, nil
}

// ErrBadMessageLength classifies a message whose payload length does not
// match what its id requires — spec §4.3: "A message with unexpected
// length for its id is treated as a protocol error, terminating the
// session."
var ErrBadMessageLength = errors.New("wire: payload length does not match message id")

// ValidateLength checks m's payload length against the fixed or minimum
// length its id requires.
func ValidateLength(m *Message) error {
	switch m.ID {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested:
		if len(m.Payload) != 0 {
			return errors.Wrapf(ErrBadMessageLength, "%s expects empty payload, got %d bytes", m.ID, len(m.Payload))
		}
	case MsgHave:
		if len(m.Payload) != 4 {
			return errors.Wrapf(ErrBadMessageLength, "have expects 4 bytes, got %d", len(m.Payload))
		}
	case MsgPiece:
		if len(m.Payload) < 8 {
			return errors.Wrapf(ErrBadMessageLength, "piece expects at least 8 bytes, got %d", len(m.Payload))
		}
	case MsgRequest, MsgCancel:
		if len(m.Payload) != 12 {
			return errors.Wrapf(ErrBadMessageLength, "%s expects 12 bytes, got %d", m.ID, len(m.Payload))
		}
	}
	return nil
}

// FormatHave builds a "have" message for piece index.
func FormatHave(index int) *Message {
	w := NewWriter()
	w.PutUint32(uint32(index))
	return &Message{ID: MsgHave, Payload: w.Bytes()}
}

// FormatRequest builds a "request" message for the given block coordinates.
func FormatRequest(index, begin, length int) *Message {
	w := NewWriter()
	w.PutUint32(uint32(index)).PutUint32(uint32(begin)).PutUint32(uint32(length))
	return &Message{ID: MsgRequest, Payload: w.Bytes()}
}

// ParseHave extracts the piece index from a "have" message. Caller must
// have already validated the message's id and length.
func ParseHave(m *Message) int {
	index, _ := NewReader(m.Payload).Uint32()
	return int(index)
}

// ParsePiece extracts the piece index, offset and data from a "piece"
// message. Caller must have already validated the message's id and length.
func ParsePiece(m *Message) (index, begin int, data []byte) {
	r := NewReader(m.Payload)
	idx, _ := r.Uint32()
	off, _ := r.Uint32()
	return int(idx), int(off), r.Remaining()
}

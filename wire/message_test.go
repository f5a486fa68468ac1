package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeKeepAlive(t *testing.T) {
	var m *Message
	assert.Equal(t, []byte{0, 0, 0, 0}, m.Serialize())
}

func TestMessageRoundTrip(t *testing.T) {
	m := &Message{ID: MsgPiece, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	buf := m.Serialize()
	got, err := ReadMessage(bytes.NewReader(buf))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, MsgPiece, got.ID)
	assert.Equal(t, m.Payload, got.Payload)
}

func TestReadMessageKeepAlive(t *testing.T) {
	got, err := ReadMessage(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestValidateLengthRejectsBadLengths(t *testing.T) {
	assert.Error(t, ValidateLength(&Message{ID: MsgChoke, Payload: []byte{1}}))
	assert.Error(t, ValidateLength(&Message{ID: MsgHave, Payload: []byte{1, 2}}))
	assert.Error(t, ValidateLength(&Message{ID: MsgRequest, Payload: []byte{1, 2, 3}}))
	assert.Error(t, ValidateLength(&Message{ID: MsgPiece, Payload: []byte{1}}))
	assert.NoError(t, ValidateLength(&Message{ID: MsgUnchoke}))
	assert.NoError(t, ValidateLength(&Message{ID: MsgHave, Payload: make([]byte, 4)}))
}

func TestFormatAndParseHave(t *testing.T) {
	m := FormatHave(42)
	require.NoError(t, ValidateLength(m))
	assert.Equal(t, 42, ParseHave(m))
}

func TestFormatAndParseRequest(t *testing.T) {
	m := FormatRequest(1, 16384, 16384)
	require.NoError(t, ValidateLength(m))
	r := NewReader(m.Payload)
	index, err := r.Uint32()
	require.NoError(t, err)
	begin, err := r.Uint32()
	require.NoError(t, err)
	length, err := r.Uint32()
	require.NoError(t, err)
	assert.EqualValues(t, 1, index)
	assert.EqualValues(t, 16384, begin)
	assert.EqualValues(t, 16384, length)
}

func TestParsePiece(t *testing.T) {
	w := NewWriter().PutUint32(3).PutUint32(100).PutBytes([]byte("data"))
	m := &Message{ID: MsgPiece, Payload: w.Bytes()}
	require.NoError(t, ValidateLength(m))
	index, begin, data := ParsePiece(m)
	assert.Equal(t, 3, index)
	assert.Equal(t, 100, begin)
	assert.Equal(t, []byte("data"), data)
}

func TestReaderUnderflow(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.Uint32()
	assert.ErrorIs(t, err, ErrUnderflow)
}

package wire

import (
	"io"

	"github.com/pkg/errors"
)

const protocolString = "BitTorrent protocol"

// HandshakeLen is the fixed length of a serialized Handshake (spec §4.3).
const HandshakeLen = 1 + len(protocolString) + 8 + 20 + 20

// Handshake is the 68-byte fixed-layout greeting exchanged before any other
// traffic on a new peer connection.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize writes the 68-byte wire form: pstrlen, pstr, 8 zero reserved
// bytes, info hash, peer id.
func (h Handshake) Serialize() []byte {
	buf := make([]byte, HandshakeLen)
	cursor := 0
	buf[cursor] = byte(len(protocolString))
	cursor++
	cursor += copy(buf[cursor:], protocolString)
	cursor += 8 // reserved, left zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and parses a 68-byte handshake from r. It validates
// pstrlen and that the protocol string is exactly "BitTorrent protocol",
// but not the info hash; callers must separately check the info hash
// against what they expect via Verify.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, errors.Wrap(err, "wire: reading handshake")
	}
	return parseHandshake(buf)
}

func parseHandshake(buf []byte) (Handshake, error) {
	if len(buf) != HandshakeLen {
		return Handshake{}, errors.New("wire: handshake has wrong length")
	}
	pstrlen := int(buf[0])
	if pstrlen != len(protocolString) {
		return Handshake{}, errors.Errorf("wire: unexpected pstrlen %d", pstrlen)
	}
	if string(buf[1:1+pstrlen]) != protocolString {
		return Handshake{}, errors.New("wire: unexpected protocol string")
	}
	var h Handshake
	cursor := 1 + pstrlen + 8
	copy(h.InfoHash[:], buf[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], buf[cursor:cursor+20])
	return h, nil
}

// Verify reports whether got is an acceptable handshake for a connection
// expecting infoHash. Reserved bytes and peer id are never checked (spec
// §4.3); pstrlen/protocol string were already validated by whatever parsed
// got into a Handshake.
func Verify(got Handshake, infoHash [20]byte) bool {
	return got.InfoHash == infoHash
}

// VerifyBytes parses a raw 68-byte handshake and reports whether it is
// acceptable for infoHash: pstrlen, protocol string and info hash must
// match exactly; any change to reserved bytes or peer id is ignored. A
// structurally invalid buffer (wrong length, bad pstrlen, wrong protocol
// string) is rejected the same as a mismatched info hash, both surface as
// false rather than an error — this is the direct testable form of spec
// §4.3/§8's verify_handshake property.
func VerifyBytes(buf []byte, infoHash [20]byte) bool {
	h, err := parseHandshake(buf)
	if err != nil {
		return false
	}
	return Verify(h, infoHash)
}

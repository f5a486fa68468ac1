package bencode

import (
	"bytes"
	"testing"

	bencodego "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/require"
)

// fixtureInfo/fixtureTorrent mirror the shape of a single-file .torrent
// info dict, used only to generate well-formed bencode fixtures for this
// package's own tests via a reflection-based marshaller. This is a
// convenience for building test bytes; the codec under test (Decode/Encode
// above) never reuses this library.
type fixtureInfo struct {
	Pieces      string `bencode:"pieces"`
	PieceLength int    `bencode:"piece length"`
	Length      int    `bencode:"length"`
	Name        string `bencode:"name"`
}

type fixtureTorrent struct {
	Announce string      `bencode:"announce"`
	Info     fixtureInfo `bencode:"info"`
}

func TestDecodeAgainstLibraryFixture(t *testing.T) {
	fixture := fixtureTorrent{
		Announce: "http://tracker.example/announce",
		Info: fixtureInfo{
			Pieces:      string(bytes.Repeat([]byte{0xAB}, 20)),
			PieceLength: 16384,
			Length:      16384,
			Name:        "fixture.bin",
		},
	}
	var buf bytes.Buffer
	require.NoError(t, bencodego.Marshal(&buf, fixture))

	v, err := Decode(buf.Bytes())
	require.NoError(t, err)

	info, ok := v.Get("info")
	require.True(t, ok)
	name, ok := info.Get("name")
	require.True(t, ok)
	s, _ := name.Str()
	require.Equal(t, "fixture.bin", s)
}

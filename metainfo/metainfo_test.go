package metainfo

import (
	"bytes"
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorent/gorent/bencode"
)

func buildTorrentBytes(t *testing.T, pieceLength, length int, pieces []byte, extra map[string]bencode.Value) []byte {
	t.Helper()
	info := map[string]bencode.Value{
		"piece length": bencode.Integer(int64(pieceLength)),
		"length":       bencode.Integer(int64(length)),
		"name":         bencode.StringFrom("movie.mp4"),
		"pieces":       bencode.String(pieces),
	}
	for k, v := range extra {
		info[k] = v
	}
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.StringFrom("http://tracker.example/announce"),
		"info":     bencode.Dict(info),
	})
	return bencode.Encode(root)
}

func TestLoadSingleFileTorrent(t *testing.T) {
	hash := sha1.Sum([]byte("piece-data"))
	data := buildTorrentBytes(t, 16384, 16384, hash[:], nil)

	m, err := Load(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, "http://tracker.example/announce", m.AnnounceURL)
	assert.EqualValues(t, 16384, m.PieceLength)
	assert.EqualValues(t, 16384, m.FileLength)
	assert.Equal(t, "movie.mp4", m.FileName)
	require.Len(t, m.PieceHashes, 1)
	assert.Equal(t, hash, m.PieceHashes[0])
}

func TestLoadComputesInfoHashFromRawSpan(t *testing.T) {
	hash := sha1.Sum([]byte("piece-data"))
	data := buildTorrentBytes(t, 16384, 16384, hash[:], nil)

	m, err := Load(bytes.NewReader(data), nil)
	require.NoError(t, err)

	start, end, err := bencode.DictValueSpan(data, "info")
	require.NoError(t, err)
	want := sha1.Sum(data[start:end])
	assert.Equal(t, want, m.InfoHash)
}

func TestNumPiecesMatchesFileLength(t *testing.T) {
	hash1 := sha1.Sum([]byte("a"))
	hash2 := sha1.Sum([]byte("b"))
	pieces := append(append([]byte{}, hash1[:]...), hash2[:]...)
	data := buildTorrentBytes(t, 100, 150, pieces, nil)

	m, err := Load(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumPieces())
}

func TestLoadRejectsMismatchedPieceCount(t *testing.T) {
	hash := sha1.Sum([]byte("only one"))
	data := buildTorrentBytes(t, 100, 250, hash[:], nil) // needs 3 pieces, has 1
	_, err := Load(bytes.NewReader(data), nil)
	assert.Error(t, err)
}

func TestLoadRejectsBadPiecesLength(t *testing.T) {
	data := buildTorrentBytes(t, 100, 100, []byte("not-twenty-bytes"), nil)
	_, err := Load(bytes.NewReader(data), nil)
	assert.Error(t, err)
}

func TestLoadRejectsMissingAnnounce(t *testing.T) {
	info := bencode.Dict(map[string]bencode.Value{
		"piece length": bencode.Integer(16384),
		"length":       bencode.Integer(0),
		"name":         bencode.StringFrom("x"),
		"pieces":       bencode.String(nil),
	})
	root := bencode.Dict(map[string]bencode.Value{"info": info})
	_, err := Load(bytes.NewReader(bencode.Encode(root)), nil)
	assert.Error(t, err)
}

func TestLoadWarnsOnMultiFileTorrent(t *testing.T) {
	hash := sha1.Sum([]byte("piece-data"))
	data := buildTorrentBytes(t, 16384, 16384, hash[:], map[string]bencode.Value{
		"files": bencode.List([]bencode.Value{}),
	})

	var logBuf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&logBuf)

	m, err := Load(bytes.NewReader(data), log)
	require.NoError(t, err)
	assert.Equal(t, "movie.mp4", m.FileName)
	assert.Contains(t, logBuf.String(), "multi-file")
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	r := strings.NewReader(strings.Repeat("a", maxTorrentFileSize+1))
	_, err := Load(r, nil)
	assert.Error(t, err)
}

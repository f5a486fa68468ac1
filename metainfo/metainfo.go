// Package metainfo loads a .torrent file: decodes its bencoded dict,
// extracts the announce URL and info dict fields, and computes the
// info-hash (spec §4.2).
package metainfo

import (
	"crypto/sha1"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gorent/gorent/bencode"
)

// maxTorrentFileSize bounds how much of a .torrent file is read into
// memory before giving up — spec §4.2: "Reads a file ≤10 MiB into memory".
const maxTorrentFileSize = 10 << 20

// Metadata is the parsed, immutable view of a single-file .torrent (spec §3
// TorrentMetadata). It never changes after Load returns.
type Metadata struct {
	AnnounceURL  string
	InfoHash     [20]byte
	PieceLength  uint64
	FileLength   uint64
	FileName     string
	PieceHashes  [][20]byte
	CreationDate int64  // 0 if absent
	Comment      string // "" if absent
}

// NumPieces returns ceil(FileLength / PieceLength), which must equal
// len(PieceHashes) (spec §3 invariant).
func (m *Metadata) NumPieces() int {
	return len(m.PieceHashes)
}

// LoadFile opens path and delegates to Load.
func LoadFile(path string, log logrus.FieldLogger) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: opening torrent file")
	}
	defer f.Close()
	return Load(f, log)
}

// Load reads at most maxTorrentFileSize bytes from r, decodes them as a
// bencoded dict, and extracts a Metadata. log may be nil, in which case
// logrus's standard logger is used.
func Load(r io.Reader, log logrus.FieldLogger) (*Metadata, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxTorrentFileSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: reading torrent file")
	}
	if len(raw) > maxTorrentFileSize {
		return nil, errors.Errorf("metainfo: torrent file exceeds %d byte limit", maxTorrentFileSize)
	}

	root, err := bencode.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: decoding torrent file")
	}
	if root.Kind() != bencode.KindDict {
		return nil, errors.New("metainfo: root value is not a dict")
	}

	announce, ok := stringField(root, "announce")
	if !ok {
		return nil, errors.New("metainfo: missing or malformed \"announce\"")
	}

	info, ok := root.Get("info")
	if !ok || info.Kind() != bencode.KindDict {
		return nil, errors.New("metainfo: missing or malformed \"info\" dict")
	}

	pieceLength, ok := uintField(info, "piece length")
	if !ok || pieceLength == 0 {
		return nil, errors.New("metainfo: missing or non-positive \"piece length\"")
	}

	fileLength, ok := uintField(info, "length")
	if !ok {
		return nil, errors.New("metainfo: missing or malformed \"length\"")
	}

	name, ok := stringField(info, "name")
	if !ok {
		return nil, errors.New("metainfo: missing or malformed \"name\"")
	}

	piecesRaw, ok := bytesField(info, "pieces")
	if !ok {
		return nil, errors.New("metainfo: missing \"pieces\"")
	}
	if len(piecesRaw)%20 != 0 {
		return nil, errors.Errorf("metainfo: \"pieces\" length %d is not a multiple of 20", len(piecesRaw))
	}
	pieceHashes := splitHashes(piecesRaw)

	expectedPieces := ceilDiv(fileLength, pieceLength)
	if uint64(len(pieceHashes)) != expectedPieces {
		return nil, errors.Errorf("metainfo: expected %d pieces for file length %d, got %d hashes",
			expectedPieces, fileLength, len(pieceHashes))
	}

	if _, hasFiles := info.Get("files"); hasFiles {
		log.WithField("name", name).Warn("metainfo: multi-file \"files\" key present under info; only single-file torrents are supported, ignoring extra entries")
	}

	infoHash, err := computeInfoHash(raw)
	if err != nil {
		return nil, errors.Wrap(err, "metainfo: computing info hash")
	}

	m := &Metadata{
		AnnounceURL: announce,
		InfoHash:    infoHash,
		PieceLength: pieceLength,
		FileLength:  fileLength,
		FileName:    name,
		PieceHashes: pieceHashes,
	}
	if cd, ok := intField(root, "creation date"); ok {
		m.CreationDate = cd
	}
	if comment, ok := stringField(root, "comment"); ok {
		m.Comment = comment
	}
	return m, nil
}

// computeInfoHash hashes the exact byte span of the "info" value as it
// appeared in the source file, per spec §4.1's preferred approach — this
// sidesteps any canonicalization divergence a re-encode-then-hash strategy
// could introduce.
func computeInfoHash(raw []byte) ([20]byte, error) {
	start, end, err := bencode.DictValueSpan(raw, "info")
	if err != nil {
		return [20]byte{}, err
	}
	return sha1.Sum(raw[start:end]), nil
}

func splitHashes(pieces []byte) [][20]byte {
	n := len(pieces) / 20
	hashes := make([][20]byte, n)
	for i := 0; i < n; i++ {
		copy(hashes[i][:], pieces[i*20:(i+1)*20])
	}
	return hashes
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func stringField(v bencode.Value, key string) (string, bool) {
	field, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return field.Str()
}

func bytesField(v bencode.Value, key string) ([]byte, bool) {
	field, ok := v.Get(key)
	if !ok {
		return nil, false
	}
	return field.Bytes()
}

func intField(v bencode.Value, key string) (int64, bool) {
	field, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	return field.Int()
}

func uintField(v bencode.Value, key string) (uint64, bool) {
	n, ok := intField(v, key)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

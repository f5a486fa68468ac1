package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorent/gorent/bencode"
)

func TestParseCompactPeers(t *testing.T) {
	blob := []byte{127, 0, 0, 1, 0x1A, 0xE1, 10, 0, 0, 1, 0x1A, 0xE2}
	peers, err := ParseCompactPeers(blob)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "127.0.0.1", peers[0].IP.String())
	assert.EqualValues(t, 0x1AE1, peers[0].Port)
	assert.Equal(t, "10.0.0.1", peers[1].IP.String())
}

func TestParseCompactPeersRejectsBadLength(t *testing.T) {
	_, err := ParseCompactPeers([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAnnounceParsesTrackerResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("compact"))
		resp := bencode.Dict(map[string]bencode.Value{
			"interval": bencode.Integer(1800),
			"peers":    bencode.String([]byte{127, 0, 0, 1, 0x1A, 0xE1}),
		})
		w.Write(bencode.Encode(resp))
	}))
	defer server.Close()

	var infoHash, peerID [20]byte
	resp, err := Announce(context.Background(), server.URL+"/announce", infoHash, peerID, 6881, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 1800, resp.Interval)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "127.0.0.1", resp.Peers[0].IP.String())
}

func TestAnnounceRejectsNonHTTPScheme(t *testing.T) {
	_, err := Announce(context.Background(), "udp://tracker.example/announce", [20]byte{}, [20]byte{}, 6881, 0, nil)
	assert.Error(t, err)
}

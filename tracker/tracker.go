// Package tracker is the external collaborator that turns a torrent's
// announce URL into a peer list: an HTTP GET against the announce
// endpoint, bencode-decoding the response, and unpacking its compact peer
// blob (spec §6). Out of the spec's core scope but implemented here so the
// orchestrator has something real to call.
package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gorent/gorent/bencode"
)

// Peer is one entry from a tracker's compact peer list.
type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

const compactPeerSize = 6

// ParseCompactPeers unpacks a tracker's compact peer blob: 6 bytes per
// peer, 4 bytes big-endian IPv4 followed by 2 bytes big-endian port,
// concatenated without delimiter (spec §3, GLOSSARY).
func ParseCompactPeers(blob []byte) ([]Peer, error) {
	if len(blob)%compactPeerSize != 0 {
		return nil, errors.Errorf("tracker: compact peer blob length %d is not a multiple of %d", len(blob), compactPeerSize)
	}
	n := len(blob) / compactPeerSize
	peers := make([]Peer, n)
	for i := 0; i < n; i++ {
		off := i * compactPeerSize
		ip := make(net.IP, 4)
		copy(ip, blob[off:off+4])
		peers[i] = Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(blob[off+4 : off+6]),
		}
	}
	return peers, nil
}

// Response is the tracker's decoded announce reply.
type Response struct {
	Interval int
	Peers    []Peer
}

// Announce performs the HTTP GET against announceURL and parses the
// tracker's bencoded response. Only http/https announce URLs are
// supported; UDP trackers are out of scope (spec §1).
func Announce(ctx context.Context, announceURL string, infoHash, peerID [20]byte, port uint16, left uint64, log logrus.FieldLogger) (*Response, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	parsed, err := url.Parse(announceURL)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: parsing announce URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Errorf("tracker: unsupported announce scheme %q (UDP trackers are out of scope)", parsed.Scheme)
	}

	query := url.Values{
		"port":       {strconv.Itoa(int(port))},
		"uploaded":   {"0"},
		"downloaded": {"0"},
		"compact":    {"1"},
		"left":       {strconv.FormatUint(left, 10)},
	}
	parsed.RawQuery = query.Encode() + "&info_hash=" + percentEncode(infoHash[:]) + "&peer_id=" + percentEncode(peerID[:])

	log.WithField("url", parsed.Host).Debug("tracker: announcing")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: building announce request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: announce request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: reading announce response")
	}

	root, err := bencode.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: decoding announce response")
	}

	intervalVal, ok := root.Get("interval")
	if !ok {
		return nil, errors.New("tracker: response missing \"interval\"")
	}
	interval, ok := intervalVal.Int()
	if !ok {
		return nil, errors.New("tracker: \"interval\" is not an integer")
	}

	peersVal, ok := root.Get("peers")
	if !ok {
		return nil, errors.New("tracker: response missing \"peers\"")
	}
	peersBlob, ok := peersVal.Bytes()
	if !ok {
		return nil, errors.New("tracker: \"peers\" is not a byte string")
	}

	peers, err := ParseCompactPeers(peersBlob)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{"peer_count": len(peers), "interval": interval}).Info("tracker: announce succeeded")
	return &Response{Interval: int(interval), Peers: peers}, nil
}

func percentEncode(b []byte) string {
	var sb []byte
	for _, v := range b {
		sb = append(sb, []byte(fmt.Sprintf("%%%02X", v))...)
	}
	return string(sb)
}

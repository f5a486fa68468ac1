package orchestrator

import (
	"bytes"
	"context"
	"crypto/sha1"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gorent/gorent/metainfo"
	"github.com/gorent/gorent/scheduler"
	"github.com/gorent/gorent/tracker"
	"github.com/gorent/gorent/wire"
)

func tcpPeer(t *testing.T, ln net.Listener) tracker.Peer {
	t.Helper()
	addr := ln.Addr().(*net.TCPAddr)
	return tracker.Peer{IP: addr.IP, Port: uint16(addr.Port)}
}

// A dead peer that accepts a connection and immediately hangs up, simulating
// a peer that never completes its handshake.
func serveDeadPeer(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	conn.Close()
}

// A cooperative peer serving exactly one piece end to end.
func serveGoodPeer(ln net.Listener, infoHash, remoteID [20]byte, data []byte) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	got, err := wire.ReadHandshake(conn)
	if err != nil || got.InfoHash != infoHash {
		return
	}
	out := wire.Handshake{InfoHash: infoHash, PeerID: remoteID}
	if _, err := conn.Write(out.Serialize()); err != nil {
		return
	}
	bf := &wire.Message{ID: wire.MsgBitfield, Payload: []byte{0x80}}
	if _, err := conn.Write(bf.Serialize()); err != nil {
		return
	}
	if _, err := wire.ReadMessage(conn); err != nil { // interested
		return
	}
	unchoke := &wire.Message{ID: wire.MsgUnchoke}
	if _, err := conn.Write(unchoke.Serialize()); err != nil {
		return
	}
	if _, err := wire.ReadMessage(conn); err != nil { // request
		return
	}
	payload := make([]byte, 8, 8+len(data))
	piece := &wire.Message{ID: wire.MsgPiece, Payload: append(payload, data...)}
	conn.Write(piece.Serialize())
	// hold the connection open for two seconds before the deferred Close,
	// simulating a peer idling after its one contribution
	time.Sleep(2 * time.Second)
}

// TestOrchestratorCompletesWithOneGoodAndOneDeadPeer verifies the
// orchestrator reaches global completion via whichever peer actually
// cooperates, while a dead peer's early disconnect never blocks progress.
func TestOrchestratorCompletesWithOneGoodAndOneDeadPeer(t *testing.T) {
	data := bytes.Repeat([]byte("Q"), 16384)
	hash := sha1.Sum(data)
	sched := scheduler.New(16384, 16384, [][20]byte{hash}, scheduler.NewMemWriter(16384), nil)

	var infoHash, ourID, remoteID [20]byte
	copy(infoHash[:], "11111111111111111111")
	copy(ourID[:], "22222222222222222222")
	copy(remoteID[:], "33333333333333333333")

	goodLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer goodLn.Close()
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer deadLn.Close()

	go serveGoodPeer(goodLn, infoHash, remoteID, data)
	go serveDeadPeer(deadLn)

	meta := &metainfo.Metadata{InfoHash: infoHash, PieceLength: 16384, FileLength: 16384, PieceHashes: [][20]byte{hash}}
	o := New(meta, sched, ourID, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, []tracker.Peer{tcpPeer(t, goodLn), tcpPeer(t, deadLn)}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("orchestrator did not finish in time")
	}
	require.True(t, sched.IsComplete())
}

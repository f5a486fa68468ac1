// Package peer implements the per-connection peer session state machine:
// connect, handshake, bitfield exchange, then a choke/unchoke/request loop
// that feeds blocks to a shared scheduler (spec §4.5).
package peer

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/gorent/gorent/bitfield"
	"github.com/gorent/gorent/scheduler"
	"github.com/gorent/gorent/tracker"
	"github.com/gorent/gorent/wire"
)

// Phase is one state of the peer session state machine (spec §4.5).
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseHandshaking
	PhaseBitfieldWait
	PhaseReady
	PhaseError
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseBitfieldWait:
		return "bitfield-wait"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	connectTimeout   = 3 * time.Second
	handshakeTimeout = 5 * time.Second
	bitfieldTimeout  = 5 * time.Second
	idleTimeout      = 2 * time.Minute // spec §5 recommendation
	maxBacklog       = 5               // spec §3/§4.5 MAXBACKLOG
	requestRateHz    = 20              // per-session request throttle (domain stack addition)
)

// Session drives one peer connection end to end. No session mutates any
// other session's state; the scheduler is the only shared mutable state
// (spec §5).
type Session struct {
	peer     tracker.Peer
	ourID    [20]byte
	infoHash [20]byte
	sched    *scheduler.Scheduler
	log      logrus.FieldLogger

	conn net.Conn

	phase         Phase
	amInterested  bool
	peerChoking   bool
	peerBitfield  bitfield.Bitfield
	pendingBlocks map[scheduler.Block]struct{}
	limiter       *rate.Limiter
}

// New constructs a Session for a single peer. Nothing happens until Run is
// called.
func New(p tracker.Peer, ourID, infoHash [20]byte, sched *scheduler.Scheduler, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		peer:          p,
		ourID:         ourID,
		infoHash:      infoHash,
		sched:         sched,
		log:           log.WithField("peer", p.String()),
		phase:         PhaseConnecting,
		peerChoking:   true,
		peerBitfield:  bitfield.New(sched.NumPieces()),
		pendingBlocks: make(map[scheduler.Block]struct{}),
		limiter:       rate.NewLimiter(rate.Limit(requestRateHz), maxBacklog),
	}
}

// Phase returns the session's current state.
func (s *Session) Phase() Phase { return s.phase }

// Run drives the session to completion: connect, handshake, bitfield
// exchange, then the steady-state request loop, until ctx is cancelled, the
// connection errors, or a protocol violation is detected. On any exit path
// all blocks still in pendingBlocks are returned to the scheduler (spec
// §4.5's "On Error" cleanup, generalized to every exit reason) before Run
// returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.returnPendingBlocks()

	if err := s.connect(ctx); err != nil {
		s.phase = PhaseError
		return errors.Wrap(err, "peer: connect")
	}
	defer s.conn.Close()

	closeOnCancel := make(chan struct{})
	defer close(closeOnCancel)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-closeOnCancel:
		}
	}()

	s.phase = PhaseHandshaking
	if err := s.handshake(); err != nil {
		s.phase = PhaseError
		s.log.WithError(err).Debug("peer: handshake failed")
		return errors.Wrap(err, "peer: handshake")
	}

	s.phase = PhaseBitfieldWait
	if err := s.awaitBitfield(); err != nil {
		s.phase = PhaseError
		s.log.WithError(err).Debug("peer: bitfield wait failed")
		return errors.Wrap(err, "peer: bitfield wait")
	}
	s.phase = PhaseReady

	if err := s.loop(ctx); err != nil {
		s.phase = PhaseError
		if errors.Is(err, wire.ErrBadMessageLength) {
			s.log.WithError(err).Warn("peer: protocol violation")
		} else {
			s.log.WithError(err).Debug("peer: session loop ended")
		}
		return err
	}
	s.phase = PhaseDisconnected
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", s.peer.String())
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *Session) handshake() error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	out := wire.Handshake{InfoHash: s.infoHash, PeerID: s.ourID}
	if _, err := s.conn.Write(out.Serialize()); err != nil {
		return errors.Wrap(err, "sending handshake")
	}
	got, err := wire.ReadHandshake(s.conn)
	if err != nil {
		return errors.Wrap(err, "reading handshake")
	}
	if !wire.Verify(got, s.infoHash) {
		return errors.Errorf("info hash mismatch: expected %x got %x", s.infoHash, got.InfoHash)
	}
	return nil
}

// awaitBitfield reads the first post-handshake message. Per spec §4.5 a
// Bitfield message installs the peer's bitfield and sends "interested"; a
// Have sets only that piece's bit in an otherwise empty bitfield, and an
// Unchoke leaves the bitfield empty. Either way
// this session always wants to download, so it sends "interested" exactly
// once on its way to Ready regardless of which message got it there (see
// DESIGN.md for why the spec's two transition branches are unified here).
func (s *Session) awaitBitfield() error {
	s.conn.SetDeadline(time.Now().Add(bitfieldTimeout))
	defer s.conn.SetDeadline(time.Time{})

	msg, err := wire.ReadMessage(s.conn)
	if err != nil {
		return err
	}
	if msg == nil {
		return errors.New("expected bitfield/have/unchoke, got keep-alive")
	}
	switch msg.ID {
	case wire.MsgBitfield:
		s.peerBitfield = bitfield.Bitfield(msg.Payload)
	case wire.MsgHave:
		if err := wire.ValidateLength(msg); err != nil {
			return err
		}
		s.peerBitfield.Set(wire.ParseHave(msg))
	case wire.MsgUnchoke:
		s.peerChoking = false
	default:
		return errors.Errorf("unexpected first message id %s", msg.ID)
	}
	return s.sendInterested()
}

func (s *Session) sendInterested() error {
	if s.amInterested {
		return nil
	}
	if _, err := s.conn.Write((&wire.Message{ID: wire.MsgInterested}).Serialize()); err != nil {
		return errors.Wrap(err, "sending interested")
	}
	s.amInterested = true
	return nil
}

// loop is the steady-state request/response cycle (spec §4.5).
func (s *Session) loop(ctx context.Context) error {
	if !s.peerChoking {
		if err := s.fillPipeline(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		msg, err := wire.ReadMessage(s.conn)
		if err != nil {
			return errors.Wrap(err, "reading message")
		}
		if msg == nil {
			continue // keep-alive
		}
		if err := wire.ValidateLength(msg); err != nil {
			return err
		}
		if err := s.dispatch(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(ctx context.Context, msg *wire.Message) error {
	switch msg.ID {
	case wire.MsgChoke:
		s.peerChoking = true
	case wire.MsgUnchoke:
		s.peerChoking = false
		if s.amInterested {
			return s.fillPipeline(ctx)
		}
	case wire.MsgInterested, wire.MsgNotInterested:
		// we never serve; ignored
	case wire.MsgHave:
		s.peerBitfield.Set(wire.ParseHave(msg))
	case wire.MsgBitfield:
		s.peerBitfield = bitfield.Bitfield(msg.Payload)
	case wire.MsgRequest, wire.MsgCancel:
		// we never serve; ignored
	case wire.MsgPiece:
		return s.handlePiece(ctx, msg)
	}
	return nil
}

func (s *Session) handlePiece(ctx context.Context, msg *wire.Message) error {
	index, begin, data := wire.ParsePiece(msg)
	blk := scheduler.Block{PieceIndex: uint32(index), Offset: uint32(begin), Length: uint32(len(data))}
	delete(s.pendingBlocks, blk)

	if err := s.sched.DeliverBlock(index, begin, data); err != nil {
		return errors.Wrap(err, "scheduler rejected delivered block")
	}
	if !s.peerChoking && s.amInterested {
		return s.fillPipeline(ctx)
	}
	return nil
}

// fillPipeline tops up pendingBlocks up to maxBacklog outstanding
// requests, per spec §4.5's "implementer MAY maintain a small outstanding
// window (e.g. up to 5)". Each request is throttled by the session's rate
// limiter.
func (s *Session) fillPipeline(ctx context.Context) error {
	for len(s.pendingBlocks) < maxBacklog {
		blk, ok := s.sched.RequestBlock(s.peerBitfield)
		if !ok {
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			s.sched.ReturnBlock(blk)
			return err
		}
		req := wire.FormatRequest(int(blk.PieceIndex), int(blk.Offset), int(blk.Length))
		if _, err := s.conn.Write(req.Serialize()); err != nil {
			s.sched.ReturnBlock(blk)
			return errors.Wrap(err, "sending request")
		}
		s.pendingBlocks[blk] = struct{}{}
	}
	return nil
}

func (s *Session) returnPendingBlocks() {
	for blk := range s.pendingBlocks {
		s.sched.ReturnBlock(blk)
		delete(s.pendingBlocks, blk)
	}
}

// Package scheduler is the shared state machine piece scheduler: it hands
// out block requests to many peer workers, tracks in-flight blocks,
// verifies completed pieces against SHA-1 digests, and persists them (spec
// §4.4). It is the single source of truth for download progress.
package scheduler

import (
	"crypto/sha1"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gorent/gorent/bitfield"
)

// ErrOutOfBounds classifies a delivered block whose offset+length would
// write past the piece's declared size.
var ErrOutOfBounds = errors.New("scheduler: block delivery out of piece bounds")

// ErrHashMismatch classifies a fully-assembled piece whose SHA-1 does not
// match its expected hash. The caller (a peer session) should treat this as
// cause to drop the offending peer; scheduler state itself stays
// consistent — the piece is simply retried from scratch.
var ErrHashMismatch = errors.New("scheduler: piece failed hash verification")

// pendingPiece accumulates a piece's bytes as blocks arrive. Created
// lazily on first delivered block; destroyed on verification success or
// hash mismatch (spec §3).
type pendingPiece struct {
	data           []byte
	blocksReceived uint32
	totalBlocks    uint32
}

// Scheduler owns SchedulerState (spec §3) behind a single mutex. All
// operations are short; the file write happens while holding the lock
// (spec §4.4 permits this since disk is local and critical sections are
// small).
type Scheduler struct {
	mu sync.Mutex

	pieceLength uint64
	fileLength  uint64
	numPieces   int
	pieceHashes [][20]byte

	haveBitfield   bitfield.Bitfield
	finished       []bool
	nextOffset     []uint32
	pending        map[int]*pendingPiece
	inFlight       map[blockKey]Block
	piecesFinished int

	writer PieceWriter
	log    logrus.FieldLogger

	doneOnce sync.Once
	doneCh   chan struct{}
}

// New constructs a Scheduler for a torrent with the given per-piece
// length, total file length and expected SHA-1 hashes. writer receives
// each piece's bytes as it is verified.
func New(pieceLength, fileLength uint64, pieceHashes [][20]byte, writer PieceWriter, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	numPieces := len(pieceHashes)
	s := &Scheduler{
		pieceLength:  pieceLength,
		fileLength:   fileLength,
		numPieces:    numPieces,
		pieceHashes:  pieceHashes,
		haveBitfield: bitfield.New(numPieces),
		finished:     make([]bool, numPieces),
		nextOffset:   make([]uint32, numPieces),
		pending:      make(map[int]*pendingPiece),
		inFlight:     make(map[blockKey]Block),
		writer:       writer,
		log:          log,
		doneCh:       make(chan struct{}),
	}
	if numPieces == 0 {
		s.signalDoneLocked()
	}
	return s
}

// PieceLengthFor returns piece i's byte length: pieceLength for every piece
// except the last, whose length is fileLength - (numPieces-1)*pieceLength
// (or pieceLength itself if that would be zero) — spec §4.4.
func (s *Scheduler) PieceLengthFor(i int) uint64 {
	if i < s.numPieces-1 {
		return s.pieceLength
	}
	last := s.fileLength - uint64(s.numPieces-1)*s.pieceLength
	if last == 0 {
		return s.pieceLength
	}
	return last
}

// BlocksForPiece returns ceil(PieceLengthFor(i) / BlockLen).
func (s *Scheduler) BlocksForPiece(i int) uint32 {
	length := s.PieceLengthFor(i)
	return uint32((length + BlockLen - 1) / BlockLen)
}

// NumPieces returns the total piece count.
func (s *Scheduler) NumPieces() int { return s.numPieces }

// Done returns a channel closed once every piece has been verified and
// written — the orchestrator's global completion signal (spec §4.6, §9).
func (s *Scheduler) Done() <-chan struct{} { return s.doneCh }

func (s *Scheduler) signalDoneLocked() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// IsComplete reports whether every piece has finished and been verified.
func (s *Scheduler) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.piecesFinished == s.numPieces
}

// Progress returns (pieces finished, total pieces).
func (s *Scheduler) Progress() (done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.piecesFinished, s.numPieces
}

// RequestBlock scans peerBitfield for a piece the peer holds that we still
// need, and returns the next unclaimed block of the first such piece that
// has one available. It returns ok=false if the peer holds nothing we need,
// or every candidate piece's remaining blocks are already in flight (spec
// §4.4).
//
// Where spec §4.4 is read literally ("for the first piece the peer has
// that we lack, call next_block_for_piece") as stopping at the first
// candidate piece even if that piece's blocks are all in flight, this
// implementation instead keeps scanning subsequent candidate pieces —
// otherwise a single stalled piece (all its blocks mid-flight to other
// peers) would starve a requester that could usefully start a different
// piece. See DESIGN.md.
func (s *Scheduler) RequestBlock(peerBitfield bitfield.Bitfield) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.numPieces; i++ {
		if s.finished[i] {
			continue
		}
		if !peerBitfield.Has(i) {
			continue
		}
		if blk, ok := s.nextBlockForPieceLocked(i); ok {
			s.inFlight[keyOf(blk)] = blk
			return blk, true
		}
	}
	return Block{}, false
}

// nextBlockForPieceLocked walks offsets starting at nextOffset[i], skipping
// any offset already in flight, and returns the first unclaimed block.
func (s *Scheduler) nextBlockForPieceLocked(i int) (Block, bool) {
	length := s.PieceLengthFor(i)
	offset := s.nextOffset[i]
	for uint64(offset) < length {
		blockLen := uint32(BlockLen)
		if remaining := length - uint64(offset); remaining < BlockLen {
			blockLen = uint32(remaining)
		}
		blk := Block{PieceIndex: uint32(i), Offset: offset, Length: blockLen}
		if _, inFlight := s.inFlight[keyOf(blk)]; !inFlight {
			s.nextOffset[i] = offset + blockLen
			return blk, true
		}
		offset += blockLen
	}
	return Block{}, false
}

// DeliverBlock records data as piece_index's bytes starting at offset. If
// the piece is already finished the delivery is accepted silently as a
// duplicate. Once every block of a piece has arrived, the piece is
// SHA-1-verified: on match it is written to disk and marked finished; on
// mismatch it is discarded and will be retried from scratch.
func (s *Scheduler) DeliverBlock(pieceIndex, offset int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pieceIndex < 0 || pieceIndex >= s.numPieces {
		return errors.Wrapf(ErrOutOfBounds, "piece index %d out of range [0,%d)", pieceIndex, s.numPieces)
	}
	if s.finished[pieceIndex] {
		return nil // duplicate delivery for an already-verified piece
	}

	pp, ok := s.pending[pieceIndex]
	if !ok {
		pp = &pendingPiece{
			data:        make([]byte, s.PieceLengthFor(pieceIndex)),
			totalBlocks: s.BlocksForPiece(pieceIndex),
		}
		s.pending[pieceIndex] = pp
	}

	if offset < 0 || uint64(offset)+uint64(len(data)) > uint64(len(pp.data)) {
		return errors.Wrapf(ErrOutOfBounds, "piece %d offset %d len %d exceeds size %d",
			pieceIndex, offset, len(data), len(pp.data))
	}
	copy(pp.data[offset:], data)
	delete(s.inFlight, blockKey{pieceIndex: uint32(pieceIndex), offset: uint32(offset)})
	pp.blocksReceived++

	if pp.blocksReceived < pp.totalBlocks {
		return nil
	}

	hash := sha1.Sum(pp.data)
	if hash != s.pieceHashes[pieceIndex] {
		delete(s.pending, pieceIndex)
		s.nextOffset[pieceIndex] = 0
		s.log.WithField("piece", pieceIndex).Warn("scheduler: piece failed hash verification, retrying")
		return errors.Wrapf(ErrHashMismatch, "piece %d", pieceIndex)
	}

	if err := s.writer.WriteAt(pp.data, int64(pieceIndex)*int64(s.pieceLength)); err != nil {
		return err
	}
	s.haveBitfield.Set(pieceIndex)
	s.finished[pieceIndex] = true
	delete(s.pending, pieceIndex)
	s.piecesFinished++
	s.log.WithFields(logrus.Fields{"piece": pieceIndex, "done": s.piecesFinished, "total": s.numPieces}).Debug("scheduler: piece verified")
	if s.piecesFinished == s.numPieces {
		s.signalDoneLocked()
	}
	return nil
}

// ReturnBlock makes block available to other peers again, called when a
// session holding it fails before delivering it (spec §4.4, §4.5). It
// reports whether block was actually in flight.
func (s *Scheduler) ReturnBlock(block Block) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(block)
	if _, ok := s.inFlight[k]; !ok {
		return false
	}
	delete(s.inFlight, k)
	if block.Offset < s.nextOffset[block.PieceIndex] {
		s.nextOffset[block.PieceIndex] = block.Offset
	}
	return true
}

// HaveBitfield returns a snapshot copy of the have bitfield.
func (s *Scheduler) HaveBitfield() bitfield.Bitfield {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(bitfield.Bitfield, len(s.haveBitfield))
	copy(cp, s.haveBitfield)
	return cp
}

// Close releases the underlying writer.
func (s *Scheduler) Close() error {
	return s.writer.Close()
}

// Package orchestrator owns the scheduler and the pool of peer sessions: it
// spawns one goroutine per peer, lets each session run independently against
// the shared scheduler, and stops the whole pool once the scheduler reports
// the download complete (spec §4.6).
package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gorent/gorent/metainfo"
	"github.com/gorent/gorent/peer"
	"github.com/gorent/gorent/scheduler"
	"github.com/gorent/gorent/tracker"
)

// Orchestrator coordinates a single torrent download: many peer sessions
// feeding blocks into one scheduler (spec §4.6, §5). It holds no mutable
// download state itself — that all lives in the scheduler.
type Orchestrator struct {
	meta  *metainfo.Metadata
	sched *scheduler.Scheduler
	ourID [20]byte
	log   logrus.FieldLogger
}

// New constructs an Orchestrator for a loaded torrent and its scheduler.
func New(meta *metainfo.Metadata, sched *scheduler.Scheduler, ourID [20]byte, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{meta: meta, sched: sched, ourID: ourID, log: log}
}

// Run spawns one session per peer under a cancellable context and blocks
// until every session has returned: the scheduler signalling global
// completion or the caller cancelling ctx stops them all, and otherwise Run
// returns once each session has ended on its own. A single peer session's failure (refused connection,
// protocol error, hash-mismatch-triggered drop) never tears down the rest of
// the pool — only scheduler completion or caller cancellation stops every
// session, per §4.6/§7's "per-peer errors are not fatal to the download"
// design note.
func (o *Orchestrator) Run(ctx context.Context, peers []tracker.Peer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	for _, p := range peers {
		g.Go(func() error {
			sess := peer.New(p, o.ourID, o.meta.InfoHash, o.sched, o.log)
			if err := sess.Run(gctx); err != nil {
				o.log.WithError(err).WithField("peer", p.String()).Debug("orchestrator: peer session ended")
			}
			return nil // a single session's error never cancels the group
		})
	}

	go func() {
		select {
		case <-o.sched.Done():
			cancel()
		case <-gctx.Done():
		}
	}()

	return g.Wait()
}

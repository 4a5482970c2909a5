// Package partsync keeps a viewer's copy of the field in sync with the
// published partition blobs.
//
// Notifications are unreliable, so every partition tracks what is known to be
// available and what has actually been applied, and picks either the next
// patch or a full replace. Applying a blob is idempotent; stale or duplicate
// applications are harmless.
package partsync

import (
	"math"
	"time"

	"github.com/23skdu/field/internal/core"
)

// Avail is the newest publication known for a partition.
type Avail struct {
	Seq     int64
	Changed int64
	Updated time.Time
}

// Fetch is one planned blob download.
type Fetch struct {
	Partition core.PartitionXY
	Kind      core.BlobKind
	Seq       int64
	Guessed   bool
}

type ringEntry struct {
	kind core.BlobKind
	seq  int64
}

// State is the reconciliation state of one partition.
type State struct {
	Avail          *Avail
	WrittenPatch   int64
	WrittenReplace int64
	HasReplace     bool
	DroppedPatches int64
	Pending        bool

	ring []ringEntry
	next int
}

func newState(ringSize int) *State {
	return &State{ring: make([]ringEntry, 0, ringSize)}
}

// Observe books a notification and returns the number of patches it shows
// were missed. Replace notices only matter before anything else was seen.
// Sequence numbers never move backwards.
func (s *State) Observe(n core.Notification, now time.Time) int64 {
	if s.Avail == nil {
		s.Avail = &Avail{Seq: n.SequenceNumber, Updated: now}
		if !n.NoChange {
			s.Avail.Changed = n.SequenceNumber
		}
		return 0
	}
	if n.Kind == core.KindReplace {
		return 0
	}

	expected := s.Avail.Seq
	if n.NoChange {
		expected++
	}
	dropped := n.SequenceNumber - min(n.SequenceNumber, expected)
	s.DroppedPatches += dropped
	if !n.NoChange && n.SequenceNumber > s.Avail.Changed {
		s.Avail.Changed = n.SequenceNumber
	}
	s.Avail.Seq = max(s.Avail.Seq, n.SequenceNumber)
	s.Avail.Updated = now
	return dropped
}

// Seed records a sequence learned out of band, such as at session start.
func (s *State) Seed(seq int64, now time.Time) {
	if s.Avail != nil && seq <= s.Avail.Seq {
		return
	}
	if s.Avail == nil {
		s.Avail = &Avail{}
	}
	s.Avail.Seq = seq
	s.Avail.Changed = seq
	s.Avail.Updated = now
}

// target is the sequence worth fetching next, guessed from the assumed
// publication cadence when notifications have gone quiet.
func (s *State) target(cfg Config, now time.Time) (int64, bool) {
	if s.Avail == nil {
		return 0, false
	}
	silent := now.Sub(s.Avail.Updated)
	if silent <= cfg.GuessAfter {
		return s.Avail.Changed, false
	}
	ticks := math.Round(float64(silent+cfg.GuessOffset) / float64(cfg.GuessCadence))
	return s.Avail.Seq + max(0, int64(ticks)), true
}

func (s *State) written() int64 {
	return max(s.WrittenPatch, s.WrittenReplace)
}

// Plan picks the next fetch for the partition, if any. period is the
// round's replace period.
func (s *State) Plan(pxy core.PartitionXY, cfg Config, period int64, now time.Time) (Fetch, bool) {
	if s.Pending {
		return Fetch{}, false
	}
	target, guessed := s.target(cfg, now)
	if target <= 0 || target <= s.written() {
		return Fetch{}, false
	}

	f := Fetch{Partition: pxy, Kind: core.KindPatch, Seq: target, Guessed: guessed}
	if s.preferReplace(cfg, target, period) {
		// A replace older than what is already applied would hide newer cells.
		if replaceSeq := target - target%period; replaceSeq > 0 && (!s.HasReplace || replaceSeq > s.written()) {
			f.Kind = core.KindReplace
			f.Seq = replaceSeq
		}
	}
	if s.recent(f.Kind, f.Seq) {
		return Fetch{}, false
	}
	return f, true
}

func (s *State) preferReplace(cfg Config, target, period int64) bool {
	if !s.HasReplace {
		return true
	}
	if target-s.WrittenReplace > cfg.MaxPatchesWithoutReplace {
		return true
	}
	// Patches published after the latest replace are not healed by it.
	replaceSeq := target - target%period
	adjusted := s.DroppedPatches - min(s.DroppedPatches, target-replaceSeq)
	return adjusted > cfg.MaxDroppedPatches
}

func (s *State) recent(kind core.BlobKind, seq int64) bool {
	for _, e := range s.ring {
		if e.kind == kind && e.seq == seq {
			return true
		}
	}
	return false
}

func (s *State) remember(kind core.BlobKind, seq int64) {
	e := ringEntry{kind: kind, seq: seq}
	if len(s.ring) < cap(s.ring) {
		s.ring = append(s.ring, e)
		return
	}
	if len(s.ring) == 0 {
		return
	}
	s.ring[s.next] = e
	s.next = (s.next + 1) % len(s.ring)
}

func (s *State) forget(kind core.BlobKind, seq int64) {
	for i, e := range s.ring {
		if e.kind == kind && e.seq == seq {
			s.ring[i] = ringEntry{}
		}
	}
}

func (s *State) forgetPatchesAfter(seq int64) {
	for i, e := range s.ring {
		if e.kind == core.KindPatch && e.seq > seq {
			s.ring[i] = ringEntry{}
		}
	}
}

// Start marks f in flight.
func (s *State) Start(f Fetch) {
	s.Pending = true
	s.remember(f.Kind, f.Seq)
}

// Succeed advances the written markers after f was applied.
func (s *State) Succeed(f Fetch) {
	s.Pending = false
	switch f.Kind {
	case core.KindReplace:
		s.WrittenReplace = max(s.WrittenReplace, f.Seq)
		s.HasReplace = true
		s.DroppedPatches = 0
		// The first replace may predate patches applied before it, which it
		// has now overwritten. Fetch them again.
		if s.WrittenPatch > f.Seq {
			s.WrittenPatch = f.Seq
			s.forgetPatchesAfter(f.Seq)
		}
	default:
		s.WrittenPatch = max(s.WrittenPatch, f.Seq)
		s.DroppedPatches = max(0, s.DroppedPatches-1)
	}
}

// Fail leaves the markers alone. A blob that is not published yet stays in
// the ring, so it is only asked for again once it rotates out; any other
// failure is retried on the next tick.
func (s *State) Fail(f Fetch, notFound bool) {
	s.Pending = false
	if !notFound {
		s.forget(f.Kind, f.Seq)
	}
}

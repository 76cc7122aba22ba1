package imap

import (
	"sort"
	"sync"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/storage"
)

// Session is the per-connection view of a selected mailbox (spec
// component E). It owns the MSN↔UID mapping, the per-UID flag
// overlay, the pending-EXPUNGE queue and the highest modseq the
// client has observed. Only the Connection and the handlers it runs
// call it; every method takes the Session's mutex, so the handlers of
// one concurrent batch may share it.
type Session struct {
	mu sync.Mutex

	Mailbox  string
	ReadOnly bool

	uidList  []uint32 // MSN i+1 -> uidList[i], ascending
	nextUID  uint32
	uidValidity uint32

	recent map[uint32]bool

	// expungedPending holds UIDs the backend has reported as expunged
	// but that have not yet been reflected in uidList and announced
	// to the client via untagged EXPUNGE; flushed between commands,
	// never mid-enumeration (spec §4.E invariant 4).
	expungedPending []uint32

	flagOverlay map[uint32][]string

	highestModSeq uint64

	Permissions authbackend.Rights

	changes <-chan storage.ChangeEvent
}

// NewSession builds a Session from a mailbox's current status and UID
// list, as returned by the storage backend at SELECT/EXAMINE time.
func NewSession(mailbox string, status storage.MailboxStatus, uids []uint32, readOnly bool, perms authbackend.Rights, changes <-chan storage.ChangeEvent) *Session {
	s := &Session{
		Mailbox:     mailbox,
		ReadOnly:    readOnly,
		uidList:     append([]uint32(nil), uids...),
		nextUID:     status.UIDNext,
		uidValidity: status.UIDValidity,
		recent:      make(map[uint32]bool),
		flagOverlay: make(map[uint32][]string),
		highestModSeq: status.HighestModSeq,
		Permissions: perms,
		changes:     changes,
	}
	return s
}

// Exists returns the current message count in the client's view.
func (s *Session) Exists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uidList)
}

// UIDValidity returns the mailbox's current UIDVALIDITY.
func (s *Session) UIDValidity() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uidValidity
}

// UIDNext returns the mailbox's current UIDNEXT.
func (s *Session) UIDNext() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextUID
}

// MaxMSN returns the largest valid MSN, 0 if the mailbox is empty.
func (s *Session) MaxMSN() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(len(s.uidList))
}

// MaxUID returns the largest UID currently in the view, 0 if empty.
func (s *Session) MaxUID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.uidList) == 0 {
		return 0
	}
	return s.uidList[len(s.uidList)-1]
}

// UIDForMSN resolves an MSN to its UID in the current, stable view.
func (s *Session) UIDForMSN(msn uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msn < 1 || int(msn) > len(s.uidList) {
		return 0, false
	}
	return s.uidList[msn-1], true
}

// MSNForUID finds the MSN of a given UID, if it is currently present.
func (s *Session) MSNForUID(uid uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.uidList), func(i int) bool { return s.uidList[i] >= uid })
	if i < len(s.uidList) && s.uidList[i] == uid {
		return uint32(i + 1), true
	}
	return 0, false
}

// ExpandMSN resolves an MSN sequence-set against the current view.
func (s *Session) ExpandMSN(set SequenceSet) []uint32 {
	return set.Expand(s.MaxMSN())
}

// ExpandUID resolves a UID sequence-set against the current view;
// UIDs in the set that do not currently exist are simply absent from
// the result (RFC 3501's UID SEARCH/FETCH semantics).
func (s *Session) ExpandUID(set SequenceSet) []uint32 {
	max := s.MaxUID()
	candidates := set.Expand(max)
	s.mu.Lock()
	defer s.mu.Unlock()
	present := make(map[uint32]bool, len(s.uidList))
	for _, u := range s.uidList {
		present[u] = true
	}
	out := candidates[:0:0]
	for _, u := range candidates {
		if present[u] {
			out = append(out, u)
		}
	}
	return out
}

// MarkRecent records that uid is \Recent for this session.
func (s *Session) MarkRecent(uid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent[uid] = true
}

// RecentCount returns the number of messages marked \Recent.
func (s *Session) RecentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent)
}

// SetFlags overlays uid's flag set, bumping the session's notion of
// highest modseq if modSeq is newer.
func (s *Session) SetFlags(uid uint32, flags []string, modSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagOverlay[uid] = append([]string(nil), flags...)
	if modSeq > s.highestModSeq {
		s.highestModSeq = modSeq
	}
}

// Flags returns the overlaid flag set for uid, if any has been staged
// locally since the mailbox was selected.
func (s *Session) Flags(uid uint32) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flagOverlay[uid]
	return f, ok
}

// HighestModSeq returns the session's highest known per-message modseq.
func (s *Session) HighestModSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highestModSeq
}

// QueueExpunge stages uid as pending removal; it is not reflected in
// uidList until FlushExpunge runs.
func (s *Session) QueueExpunge(uid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expungedPending = append(s.expungedPending, uid)
}

// FlushExpunge applies every pending expunge to uidList and returns
// the descending-MSN-ordered list of untagged EXPUNGE numbers to emit,
// per spec §4.G. It must be called only between commands, never while
// a FETCH enumeration of MSNs is in progress (spec §4.E invariant 4).
func (s *Session) FlushExpunge() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.expungedPending) == 0 {
		return nil
	}

	toRemove := make(map[uint32]bool, len(s.expungedPending))
	for _, u := range s.expungedPending {
		toRemove[u] = true
	}

	var msns []uint32
	kept := s.uidList[:0:0]
	for i, uid := range s.uidList {
		if toRemove[uid] {
			msns = append(msns, uint32(i+1))
			delete(s.flagOverlay, uid)
			delete(s.recent, uid)
		} else {
			kept = append(kept, uid)
		}
	}
	s.uidList = kept
	s.expungedPending = nil

	sort.Sort(sort.Reverse(sortUint32(msns)))
	return msns
}

// DiscardPendingExpunge drops staged expunges without emitting them,
// used by CLOSE (spec §4.E invariant 3: the client must not see
// EXPUNGE for the mailbox it is closing).
func (s *Session) DiscardPendingExpunge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expungedPending = nil
}

// AppendUID adds a newly appended message's UID to the tail of the
// view (used after this session's own APPEND/COPY into its selected
// mailbox, or after an external-change notification reports a new
// message).
func (s *Session) AppendUID(uid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uidList = append(s.uidList, uid)
	if uid >= s.nextUID {
		s.nextUID = uid + 1
	}
}

// Changes returns the channel of external change events this session
// is subscribed to, or nil if none was supplied.
func (s *Session) Changes() <-chan storage.ChangeEvent {
	return s.changes
}

type sortUint32 []uint32

func (s sortUint32) Len() int           { return len(s) }
func (s sortUint32) Less(i, j int) bool { return s[i] < s[j] }
func (s sortUint32) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

package imap

import (
	"reflect"
	"testing"

	"github.com/archiveopteryx/imapd/internal/authbackend"
	"github.com/archiveopteryx/imapd/internal/storage"
)

func newTestSession(uids []uint32) *Session {
	status := storage.MailboxStatus{UIDNext: 100, UIDValidity: 1, HighestModSeq: 5}
	return NewSession("INBOX", status, uids, false, authbackend.Rights{}, nil)
}

func TestSessionMSNUIDMapping(t *testing.T) {
	s := newTestSession([]uint32{10, 20, 30})

	if got := s.MaxMSN(); got != 3 {
		t.Errorf("MaxMSN() = %d, want 3", got)
	}
	if got := s.MaxUID(); got != 30 {
		t.Errorf("MaxUID() = %d, want 30", got)
	}
	if uid, ok := s.UIDForMSN(2); !ok || uid != 20 {
		t.Errorf("UIDForMSN(2) = (%d, %v), want (20, true)", uid, ok)
	}
	if _, ok := s.UIDForMSN(4); ok {
		t.Error("UIDForMSN(4) should be out of range")
	}
	if msn, ok := s.MSNForUID(20); !ok || msn != 2 {
		t.Errorf("MSNForUID(20) = (%d, %v), want (2, true)", msn, ok)
	}
	if _, ok := s.MSNForUID(25); ok {
		t.Error("MSNForUID(25) should not exist")
	}
}

func TestSessionExpandUIDFiltersAbsent(t *testing.T) {
	s := newTestSession([]uint32{10, 20, 30})
	set, err := ParseSequenceSet("1:40")
	if err != nil {
		t.Fatalf("ParseSequenceSet: %v", err)
	}
	got := s.ExpandUID(set)
	want := []uint32{10, 20, 30}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandUID = %v, want %v", got, want)
	}
}

func TestSessionFlagOverlay(t *testing.T) {
	s := newTestSession([]uint32{10})
	if _, ok := s.Flags(10); ok {
		t.Error("expected no overlay before SetFlags")
	}
	s.SetFlags(10, []string{`\Seen`, `\Flagged`}, 7)
	f, ok := s.Flags(10)
	if !ok || !reflect.DeepEqual(f, []string{`\Seen`, `\Flagged`}) {
		t.Errorf("Flags(10) = %v, %v", f, ok)
	}
	if s.HighestModSeq() != 7 {
		t.Errorf("HighestModSeq() = %d, want 7", s.HighestModSeq())
	}
	s.SetFlags(10, []string{`\Seen`}, 3)
	if s.HighestModSeq() != 7 {
		t.Error("HighestModSeq must not move backwards")
	}
}

func TestSessionFlushExpungeOrdersDescending(t *testing.T) {
	s := newTestSession([]uint32{10, 20, 30, 40})
	s.SetFlags(20, []string{`\Deleted`}, 1)
	s.MarkRecent(20)
	s.QueueExpunge(20)
	s.QueueExpunge(40)

	msns := s.FlushExpunge()
	want := []uint32{4, 2}
	if !reflect.DeepEqual(msns, want) {
		t.Errorf("FlushExpunge() = %v, want %v", msns, want)
	}
	if s.MaxMSN() != 2 {
		t.Errorf("MaxMSN() after flush = %d, want 2", s.MaxMSN())
	}
	if _, ok := s.Flags(20); ok {
		t.Error("flag overlay for expunged UID should be dropped")
	}
	if uid, ok := s.UIDForMSN(1); !ok || uid != 10 {
		t.Errorf("UIDForMSN(1) after flush = (%d, %v), want (10, true)", uid, ok)
	}
	if uid, ok := s.UIDForMSN(2); !ok || uid != 30 {
		t.Errorf("UIDForMSN(2) after flush = (%d, %v), want (30, true)", uid, ok)
	}
}

func TestSessionFlushExpungeEmptyIsNil(t *testing.T) {
	s := newTestSession([]uint32{10})
	if msns := s.FlushExpunge(); msns != nil {
		t.Errorf("FlushExpunge() with nothing queued = %v, want nil", msns)
	}
}

func TestSessionDiscardPendingExpunge(t *testing.T) {
	s := newTestSession([]uint32{10, 20})
	s.QueueExpunge(10)
	s.DiscardPendingExpunge()
	if msns := s.FlushExpunge(); msns != nil {
		t.Errorf("FlushExpunge() after discard = %v, want nil", msns)
	}
	if s.MaxMSN() != 2 {
		t.Error("discarded expunge must not remove the UID")
	}
}

func TestSessionAppendUIDAdvancesNext(t *testing.T) {
	s := newTestSession([]uint32{10})
	s.AppendUID(150)
	if s.MaxUID() != 150 {
		t.Errorf("MaxUID() = %d, want 150", s.MaxUID())
	}
	if s.UIDNext() != 151 {
		t.Errorf("UIDNext() = %d, want 151", s.UIDNext())
	}
	if s.MaxMSN() != 2 {
		t.Errorf("MaxMSN() = %d, want 2", s.MaxMSN())
	}
}

func TestSessionRecentCount(t *testing.T) {
	s := newTestSession([]uint32{10, 20})
	if s.RecentCount() != 0 {
		t.Fatalf("RecentCount() = %d, want 0", s.RecentCount())
	}
	s.MarkRecent(10)
	s.MarkRecent(20)
	s.MarkRecent(10)
	if s.RecentCount() != 2 {
		t.Errorf("RecentCount() = %d, want 2", s.RecentCount())
	}
}

package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/archiveopteryx/imapd/internal/imap"
	"github.com/archiveopteryx/imapd/internal/storage"
)

func TestStoreAddFlag(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: a\r\n\r\n"), nil, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	Select(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})

	seq, err := imap.ParseSequenceSet("1")
	if err != nil {
		t.Fatalf("ParseSequenceSet: %v", err)
	}
	cmd := &imap.ParsedCommand{Args: imap.Args{
		Sequence:       seq,
		StoreOp:        imap.StoreAdd,
		Flags:          []string{`\Flagged`},
		UnchangedSince: -1,
	}}

	res := Store(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("STORE failed: %s", res.Text)
	}
	if len(cmd.Untagged) != 1 || !strings.Contains(cmd.Untagged[0], `\Flagged`) {
		t.Errorf("expected an untagged FETCH with \\Flagged, got %v", cmd.Untagged)
	}
}

func TestStoreSilentSuppressesFetch(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: a\r\n\r\n"), nil, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	Select(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})

	seq, _ := imap.ParseSequenceSet("1")
	cmd := &imap.ParsedCommand{Args: imap.Args{
		Sequence:       seq,
		StoreOp:        imap.StoreAdd,
		Flags:          []string{`\Seen`},
		StoreSilent:    true,
		UnchangedSince: -1,
	}}

	res := Store(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("STORE failed: %s", res.Text)
	}
	if len(cmd.Untagged) != 0 {
		t.Errorf("expected no untagged responses with .SILENT, got %v", cmd.Untagged)
	}
}

func TestStoreRejectsReadOnlyMailbox(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: a\r\n\r\n"), nil, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	Examine(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})

	seq, _ := imap.ParseSequenceSet("1")
	cmd := &imap.ParsedCommand{Args: imap.Args{Sequence: seq, StoreOp: imap.StoreAdd, Flags: []string{`\Seen`}, UnchangedSince: -1}}

	res := Store(context.Background(), h.hc, cmd)
	if res.Cond != imap.NO {
		t.Errorf("got %v, want NO for STORE on a read-only mailbox", res.Cond)
	}
}

func TestStoreUnchangedSinceConflict(t *testing.T) {
	h := newHarness(t)
	uid1, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: a\r\n\r\n"), nil, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	uid2, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: b\r\n\r\n"), nil, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Bump message 1's modseq so UNCHANGEDSINCE 0 is stale for it; message 2
	// is untouched and stays eligible.
	if _, err := h.store.ModifyFlags(context.Background(), "INBOX", []uint32{uid1}, storage.FlagOpAdd, []string{`\Answered`}, -1); err != nil {
		t.Fatalf("ModifyFlags: %v", err)
	}
	Select(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})

	seq, _ := imap.ParseSequenceSet("1:2")
	cmd := &imap.ParsedCommand{Args: imap.Args{Sequence: seq, StoreOp: imap.StoreAdd, Flags: []string{`\Seen`}, UnchangedSince: 0}}

	res := Store(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK || !strings.HasPrefix(res.RespCode, "MODIFIED") {
		t.Errorf("expected OK [MODIFIED ...], got %v %q", res.Cond, res.RespCode)
	}
	if !strings.Contains(res.RespCode, imap.FormatUIDSet([]uint32{uid1})) {
		t.Errorf("RespCode %q should report the conflicted UID %d", res.RespCode, uid1)
	}

	// The non-conflicted message must still have been updated and reported.
	found := false
	for _, line := range cmd.Untagged {
		if strings.Contains(line, "FETCH") && strings.Contains(line, `\Seen`) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an untagged FETCH with \\Seen for the non-conflicted message, got %v", cmd.Untagged)
	}

	results, ferr := h.store.Fetch(context.Background(), "INBOX", []uint32{uid2}, storage.AttributeSet{Flags: true})
	if ferr != nil {
		t.Fatalf("Fetch: %v", ferr)
	}
	fr := <-results
	if fr.Err != nil {
		t.Fatalf("Fetch result: %v", fr.Err)
	}
	seen := false
	for _, f := range fr.Attrs.Flags {
		if f == `\Seen` {
			seen = true
		}
	}
	if !seen {
		t.Errorf("message 2 (non-conflicted) should have been flagged \\Seen, got %v", fr.Attrs.Flags)
	}
}

package handlers

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/archiveopteryx/imapd/internal/imap"
)

func TestSearchRequiresSelectedMailbox(t *testing.T) {
	h := newHarness(t)
	res := Search(context.Background(), h.hc, &imap.ParsedCommand{})
	if res.Cond != imap.BAD {
		t.Errorf("got %v, want BAD", res.Cond)
	}
}

func TestSearchByFlagReturnsMSN(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: a\r\n\r\n"), []string{`\Seen`}, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, err = h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: b\r\n\r\n"), nil, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	selectRes := Select(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})
	if selectRes.Cond != imap.OK {
		t.Fatalf("SELECT failed: %s", selectRes.Text)
	}

	cmd := &imap.ParsedCommand{Args: imap.Args{SearchQuery: &imap.SearchNode{Op: imap.SearchSeen}}}
	res := Search(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("SEARCH failed: %s", res.Text)
	}
	if len(cmd.Untagged) != 1 || cmd.Untagged[0] != "SEARCH 1" {
		t.Errorf("got %v, want [SEARCH 1]", cmd.Untagged)
	}
}

func TestSearchUIDReturnsUID(t *testing.T) {
	h := newHarness(t)
	uid, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: a\r\n\r\n"), nil, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	Select(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})

	cmd := &imap.ParsedCommand{UID: true, Args: imap.Args{SearchQuery: &imap.SearchNode{Op: imap.SearchAll}}}
	res := Search(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("SEARCH failed: %s", res.Text)
	}
	want := "SEARCH " + strconv.FormatUint(uint64(uid), 10)
	if len(cmd.Untagged) != 1 || cmd.Untagged[0] != want {
		t.Errorf("got %v, want [%s]", cmd.Untagged, want)
	}
}

package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/archiveopteryx/imapd/internal/imap"
)

func TestCapability(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{}
	res := Capability(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("CAPABILITY failed: %s", res.Text)
	}
	if len(cmd.Untagged) != 1 || !strings.HasPrefix(cmd.Untagged[0], "CAPABILITY ") {
		t.Errorf("got untagged %v, want a single CAPABILITY line", cmd.Untagged)
	}
}

func TestNoop(t *testing.T) {
	h := newHarness(t)
	res := Noop(context.Background(), h.hc, &imap.ParsedCommand{})
	if res.Cond != imap.OK {
		t.Fatalf("NOOP failed: %s", res.Text)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{}
	res := Logout(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("LOGOUT failed: %s", res.Text)
	}
	if !res.CloseConnection {
		t.Error("LOGOUT must close the connection")
	}
	if res.StateChange == nil || *res.StateChange != imap.Logout {
		t.Error("LOGOUT must transition to the Logout state")
	}
	if len(cmd.Untagged) != 1 || !strings.HasPrefix(cmd.Untagged[0], "BYE") {
		t.Errorf("got untagged %v, want a BYE line", cmd.Untagged)
	}
}

func TestID(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{Args: imap.Args{IDParams: map[string]string{"name": "testclient"}}}
	res := ID(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("ID failed: %s", res.Text)
	}
	if len(cmd.Untagged) != 1 || !strings.HasPrefix(cmd.Untagged[0], "ID (") {
		t.Errorf("got untagged %v, want a parenthesized ID line", cmd.Untagged)
	}
}

func TestCheck(t *testing.T) {
	h := newHarness(t)
	res := Check(context.Background(), h.hc, &imap.ParsedCommand{})
	if res.Cond != imap.OK {
		t.Fatalf("CHECK failed: %s", res.Text)
	}
}

func TestNamespace(t *testing.T) {
	h := newHarness(t)
	cmd := &imap.ParsedCommand{}
	res := Namespace(context.Background(), h.hc, cmd)
	if res.Cond != imap.OK {
		t.Fatalf("NAMESPACE failed: %s", res.Text)
	}
	if len(cmd.Untagged) != 1 || !strings.HasPrefix(cmd.Untagged[0], "NAMESPACE ") {
		t.Errorf("got untagged %v, want a NAMESPACE line", cmd.Untagged)
	}
}

func TestCloseRequiresSelectedMailbox(t *testing.T) {
	h := newHarness(t)
	res := Close(context.Background(), h.hc, &imap.ParsedCommand{})
	if res.Cond != imap.BAD {
		t.Errorf("got %v, want BAD", res.Cond)
	}
}

func TestCloseExpungesAndDeselects(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: x\r\n\r\nbody"), []string{`\Deleted`}, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	Select(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})

	res := Close(context.Background(), h.hc, &imap.ParsedCommand{})
	if res.Cond != imap.OK {
		t.Fatalf("CLOSE failed: %s", res.Text)
	}
	if res.StateChange == nil || *res.StateChange != imap.Authenticated {
		t.Error("CLOSE must transition back to Authenticated")
	}
	if h.conn.Session != nil {
		t.Error("CLOSE must deselect the mailbox")
	}

	st, err := h.store.Status(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Exists != 0 {
		t.Errorf("expected CLOSE to expunge \\Deleted messages, got %d remaining", st.Exists)
	}
}

func TestUnselectDoesNotExpunge(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Append(context.Background(), "INBOX", strings.NewReader("Subject: x\r\n\r\nbody"), []string{`\Deleted`}, time.Now())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	Select(context.Background(), h.hc, &imap.ParsedCommand{Args: imap.Args{Mailbox: "INBOX"}})

	res := Unselect(context.Background(), h.hc, &imap.ParsedCommand{})
	if res.Cond != imap.OK {
		t.Fatalf("UNSELECT failed: %s", res.Text)
	}
	if h.conn.Session != nil {
		t.Error("UNSELECT must deselect the mailbox")
	}

	st, err := h.store.Status(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Exists != 1 {
		t.Errorf("UNSELECT must not expunge, got %d messages remaining", st.Exists)
	}
}

func TestUnselectRequiresSelectedMailbox(t *testing.T) {
	h := newHarness(t)
	res := Unselect(context.Background(), h.hc, &imap.ParsedCommand{})
	if res.Cond != imap.BAD {
		t.Errorf("got %v, want BAD", res.Cond)
	}
}

func TestRegistryCoversAllCoreCommands(t *testing.T) {
	reg := Registry()
	for _, name := range []imap.Name{
		imap.CmdCapability, imap.CmdNoop, imap.CmdLogout, imap.CmdID,
		imap.CmdAuthenticate, imap.CmdLogin, imap.CmdStarttls, imap.CmdCompress,
		imap.CmdSelect, imap.CmdExamine, imap.CmdCreate, imap.CmdDelete, imap.CmdRename,
		imap.CmdSubscribe, imap.CmdUnsubscribe, imap.CmdList, imap.CmdLsub, imap.CmdStatus,
		imap.CmdAppend, imap.CmdNamespace, imap.CmdCheck, imap.CmdClose, imap.CmdUnselect,
		imap.CmdExpunge, imap.CmdSearch, imap.CmdFetch, imap.CmdStore, imap.CmdCopy, imap.CmdIdle,
	} {
		if _, ok := reg[name]; !ok {
			t.Errorf("Registry missing handler for %v", name)
		}
	}
}
